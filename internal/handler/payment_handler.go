package handler

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type PaymentHandler struct {
	uc *usecase.PaymentUsecase
}

func NewPaymentHandler(uc *usecase.PaymentUsecase) *PaymentHandler {
	return &PaymentHandler{uc: uc}
}

type PaymentInitiateRequest struct {
	OrderID int64 `json:"order_id" validate:"required,gt=0"`
}

// 決済画面から返ってきたレシート
type PaymentVerifyRequest struct {
	OrderID   int64  `json:"order_id" validate:"required,gt=0"`
	IntentID  string `json:"intent_id" validate:"required,max=100"`
	PaymentID string `json:"payment_id" validate:"required,max=100"`
	// 形式の判定はゲートウェイ検証に任せる（不正な値もfailedとして記録する）
	Signature string `json:"signature" validate:"required,max=128"`
}

type PaymentVerifyResponse struct {
	Success bool `json:"success"`
	usecase.ConfirmPaymentOutput
}

func (h *PaymentHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/payments")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.POST("/initiate", h.initiate)
	g.POST("/verify", h.verify)
}

func (h *PaymentHandler) initiate(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req PaymentInitiateRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	out, err := h.uc.InitiatePayment(c.Request().Context(), userID, req.OrderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PaymentHandler) verify(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req PaymentVerifyRequest
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}

	out, err := h.uc.ConfirmPayment(c.Request().Context(), userID, req.OrderID, usecase.Receipt{
		IntentID:  req.IntentID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, PaymentVerifyResponse{Success: true, ConfirmPaymentOutput: out})
}
