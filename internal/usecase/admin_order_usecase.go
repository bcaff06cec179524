package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/metrics"
	repo "storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	orders    *OrderUsecase
	users     repo.UserRepository
	addresses repo.AddressRepository
	notifier  Notifier
	log       *zap.Logger
}

func NewAdminOrderUsecase(
	orders *OrderUsecase,
	users repo.UserRepository,
	addresses repo.AddressRepository,
	notifier Notifier,
	log *zap.Logger,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{
		orders:    orders,
		users:     users,
		addresses: addresses,
		notifier:  notifier,
		log:       log,
	}
}

// NotificationErrorがあっても受付自体は成功している
type AcceptOrderOutput struct {
	Order             model.Order `json:"order"`
	Changed           bool        `json:"changed"`
	NotificationError string      `json:"notification_error,omitempty"`
}

func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	return u.orders.ListAllOrders(ctx, f)
}

// Accept は注文を受け付ける（PENDINGはCODのみ、SUCCESSはそのまま）。
// 受付後に通知を送るが、失敗してもstatusは戻さない。
func (u *AdminOrderUsecase) Accept(ctx context.Context, adminID int64, orderID int64) (AcceptOrderOutput, error) {
	if adminID <= 0 {
		return AcceptOrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	res, err := u.orders.transition(ctx, adminID, orderID, model.OrderStatusAccepted, func(o model.Order) error {
		// オンライン決済は支払い確認前に受け付けない
		if o.Status == model.OrderStatusPending && o.PaymentMethod != model.PaymentCOD {
			return fmt.Errorf("%w: online order is not paid yet", ErrInvalidTransition)
		}
		return nil
	})
	if err != nil {
		return AcceptOrderOutput{}, err
	}

	out := AcceptOrderOutput{Order: res.Order, Changed: res.Changed}
	if !res.Changed {
		return out, nil
	}

	u.log.Info("order accepted", zap.Int64("order_id", orderID), zap.Int64("admin_id", adminID))

	if err := u.notify(ctx, res.Order); err != nil {
		metrics.RecordNotification(err)
		u.log.Error("order accepted notification failed",
			zap.Int64("order_id", orderID), zap.Error(err))
		out.NotificationError = err.Error()
		return out, nil
	}
	metrics.RecordNotification(nil)
	return out, nil
}

func (u *AdminOrderUsecase) Deliver(ctx context.Context, adminID int64, orderID int64) (TransitionResult, error) {
	if adminID <= 0 {
		return TransitionResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return u.orders.Transition(ctx, adminID, orderID, model.OrderStatusDelivered)
}

// 支払い済みのキャンセルは返金対象としてログに残すだけ
func (u *AdminOrderUsecase) Cancel(ctx context.Context, adminID int64, orderID int64) (TransitionResult, error) {
	if adminID <= 0 {
		return TransitionResult{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var before model.OrderStatus
	res, err := u.orders.transition(ctx, adminID, orderID, model.OrderStatusCancelled, func(o model.Order) error {
		before = o.Status
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	if res.Changed && before != model.OrderStatusPending && res.Order.PaymentMethod == model.PaymentOnline {
		u.log.Warn("paid order cancelled, refund required",
			zap.Int64("order_id", orderID),
			zap.String("before", string(before)),
			zap.String("total", res.Order.TotalPrice.StringFixed(2)),
		)
	}
	return res, nil
}

// 通知内容を組み立てて送る
func (u *AdminOrderUsecase) notify(ctx context.Context, o model.Order) error {
	user, err := u.users.FindByID(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("load user %d: no email", o.UserID)
	}

	var addr *model.Address
	a, err := u.addresses.FindDefaultByUserID(ctx, o.UserID)
	switch {
	case err == nil:
		addr = &a
	case errors.Is(err, repo.ErrNotFound):
		// 住所なしでも送る
	default:
		return fmt.Errorf("load address: %w", err)
	}

	detail, err := u.orders.GetOrder(ctx, o.ID)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}

	items := make([]model.NoticeItem, 0, len(detail.Items))
	for _, it := range detail.Items {
		items = append(items, model.NoticeItem{
			Name:      it.Name,
			Variant:   it.Variant,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		})
	}

	return u.notifier.NotifyOrderAccepted(ctx, model.OrderAcceptedNotice{
		EventID:    uuid.NewString(),
		OrderID:    o.ID,
		UserID:     o.UserID,
		Email:      user.Email,
		Address:    addr,
		Items:      items,
		TotalPrice: o.TotalPrice,
		AcceptedAt: time.Now().UTC(),
	})
}

// 期間パラメータはhandlerでここを通してから渡す
func ParseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, false
	}
	return &t, true
}
