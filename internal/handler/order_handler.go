package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc       *usecase.OrderUsecase
	payments *usecase.PaymentUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase, payments *usecase.PaymentUsecase) *OrderHandler {
	return &OrderHandler{uc: uc, payments: payments}
}

type OrderCreateRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required,oneof=ONLINE COD"`
}

func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/orders")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.POST("", h.create)
	g.GET("/mine", h.list)
	g.GET("/:id", h.detail)
	g.GET("/:id/items", h.items)
	g.DELETE("/:id", h.abandon)
}

// カートから注文を作る
func (h *OrderHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req OrderCreateRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	out, err := h.uc.Checkout(c.Request().Context(), userID, model.PaymentMethod(req.PaymentMethod))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *OrderHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.ListOrdersForUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetMyOrder(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) items(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetMyOrder(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out.Items)
}

// 決済画面を閉じたときの取り消し（オンライン・未払いのみ）
func (h *OrderHandler) abandon(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.payments.AbandonPayment(c.Request().Context(), userID, id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}
