package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type PaymentRepository interface {
	// 同じ注文のpaymentが既にあればErrConflict
	Create(ctx context.Context, p model.Payment) (model.Payment, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error)
	// paid済みの行は書き換えない。更新できなければfalse
	UpdateStatusUnlessPaid(ctx context.Context, paymentID int64, status model.PaymentStatus, gatewayPaymentID string) (bool, error)
	DeleteByOrderID(ctx context.Context, orderID int64) error
}
