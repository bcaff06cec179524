package server

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type Handlers struct {
	Cart       *handler.CartHandler
	Order      *handler.OrderHandler
	Payment    *handler.PaymentHandler
	AdminOrder *handler.AdminOrderHandler
}

// ルートとミドルウェアを組んだechoを返す
func New(cfg config.Config, users repository.UserRepository, h Handlers, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(metrics.Middleware())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, handler.SuccessResponse{Message: "ok"})
	})
	e.GET("/metrics", metrics.Handler())

	h.Cart.RegisterRoutes(e, cfg, users)
	h.Order.RegisterRoutes(e, cfg, users)
	h.Payment.RegisterRoutes(e, cfg, users)
	h.AdminOrder.RegisterRoutes(e, cfg, users)

	return e
}
