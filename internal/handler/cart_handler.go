package handler

import (
	"context"
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

// /cartのHTTP
type CartHandler struct {
	uc *usecase.CartUsecase
}

func NewCartHandler(uc *usecase.CartUsecase) *CartHandler {
	return &CartHandler{uc: uc}
}

// 商品+バリエーションの1行を指す
type CartLineRequest struct {
	Kind  string `json:"kind" validate:"required,oneof=product custom"`
	ID    int64  `json:"id" validate:"required,gt=0"`
	Size  string `json:"size" validate:"max=50"`
	Color string `json:"color" validate:"max=50"`
}

func (r CartLineRequest) toInput() (usecase.CartLineInput, error) {
	ref, err := model.ParseRef(r.Kind, r.ID)
	if err != nil {
		return usecase.CartLineInput{}, err
	}
	return usecase.CartLineInput{
		Ref:     ref,
		Variant: model.Variant{Size: r.Size, Color: r.Color},
	}, nil
}

func (h *CartHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/cart")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.GET("", h.getCart)
	g.DELETE("", h.clear)
	g.POST("/items", h.add)
	g.POST("/items/subtract", h.subtract)
	g.DELETE("/items/:id", h.remove)
}

func (h *CartHandler) getCart(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Fetch(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) add(c echo.Context) error {
	return h.changeLine(c, h.uc.Add)
}

func (h *CartHandler) subtract(c echo.Context) error {
	return h.changeLine(c, h.uc.Subtract)
}

func (h *CartHandler) changeLine(c echo.Context, op func(context.Context, int64, usecase.CartLineInput) (usecase.CartOutput, error)) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req CartLineRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	in, err := req.toInput()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid ref"})
	}

	out, err := op(c.Request().Context(), userID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) remove(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	itemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.Remove(c.Request().Context(), userID, itemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CartHandler) clear(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	if err := h.uc.Clear(c.Request().Context(), userID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Message: "cleared"})
}
