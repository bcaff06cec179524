package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AdminOrderHandler struct {
	uc *usecase.AdminOrderUsecase
}

func NewAdminOrderHandler(uc *usecase.AdminOrderUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{uc: uc}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.TokenVersionGuard(userRepo))
	admin.Use(middleware.AdminRoleGuard())

	admin.GET("/orders", h.list)
	admin.PUT("/orders/:id/accept", h.accept)
	admin.PUT("/orders/:id/deliver", h.deliver)
	admin.PUT("/orders/:id/cancel", h.cancel)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	f := repository.AdminOrderListFilter{Page: 1, Limit: 50, Status: c.QueryParam("status")}

	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		}
		f.Page = p
	}
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		f.Limit = l
	}
	if v := c.QueryParam("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user_id"})
		}
		f.UserID = &id
	}
	if v := c.QueryParam("from"); v != "" {
		tm, ok := usecase.ParseDateTimeRFC3339(v)
		if !ok {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
		}
		f.From = tm
	}
	if v := c.QueryParam("to"); v != "" {
		tm, ok := usecase.ParseDateTimeRFC3339(v)
		if !ok {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to"})
		}
		f.To = tm
	}

	out, err := h.uc.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) accept(c echo.Context) error {
	adminID, orderID, errResp := adminAndOrderID(c)
	if errResp != nil {
		return errResp()
	}

	out, err := h.uc.Accept(c.Request().Context(), adminID, orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) deliver(c echo.Context) error {
	adminID, orderID, errResp := adminAndOrderID(c)
	if errResp != nil {
		return errResp()
	}

	out, err := h.uc.Deliver(c.Request().Context(), adminID, orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) cancel(c echo.Context) error {
	adminID, orderID, errResp := adminAndOrderID(c)
	if errResp != nil {
		return errResp()
	}

	out, err := h.uc.Cancel(c.Request().Context(), adminID, orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 操作した管理者ID（監査ログ用）と対象の注文ID
func adminAndOrderID(c echo.Context) (int64, int64, func() error) {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return 0, 0, func() error {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		}
	}
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, 0, func() error {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		}
	}
	return adminID, orderID, nil
}
