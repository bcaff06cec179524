package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/metrics"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

// 補償理由（metricsのラベル）
const (
	compensateGatewayError   = "gateway_error"
	compensateAmountMismatch = "amount_mismatch"
	compensatePaymentWrite   = "payment_write"
)

// PaymentUsecase はオンライン決済の開始・確認・中断を扱う。
// ゲートウェイ呼び出しの間はTxもロックも持たない。
type PaymentUsecase struct {
	tx       repo.TransactionManager
	orders   *OrderUsecase
	cart     *CartUsecase
	gateway  PaymentGateway
	currency string
	log      *zap.Logger
}

func NewPaymentUsecase(
	tx repo.TransactionManager,
	orders *OrderUsecase,
	cart *CartUsecase,
	gateway PaymentGateway,
	currency string,
	log *zap.Logger,
) *PaymentUsecase {
	return &PaymentUsecase{
		tx:       tx,
		orders:   orders,
		cart:     cart,
		gateway:  gateway,
		currency: currency,
		log:      log,
	}
}

type InitiatePaymentOutput struct {
	OrderID  int64  `json:"order_id"`
	IntentID string `json:"intent_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// ゲートウェイの決済画面から返ってくる値
type Receipt struct {
	IntentID  string
	PaymentID string
	Signature string
}

type ConfirmPaymentOutput struct {
	OrderID       int64               `json:"order_id"`
	OrderStatus   model.OrderStatus   `json:"order_status"`
	PaymentStatus model.PaymentStatus `json:"payment_status"`
}

// InitiatePayment はゲートウェイに支払いハンドルを作らせてpendingで記録する。
// ゲートウェイ失敗・記録失敗のときは注文を消してからErrPaymentInitiationFailed。
func (u *PaymentUsecase) InitiatePayment(ctx context.Context, userID int64, orderID int64) (InitiatePaymentOutput, error) {
	if userID <= 0 {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order_id")
	}

	var (
		order    model.Order
		existing *model.Payment
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := u.ownedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}
		if o.PaymentMethod != model.PaymentOnline {
			return NewHTTPError(http.StatusBadRequest, "order is not an online payment")
		}
		if o.Status != model.OrderStatusPending {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
		}
		order = o

		p, err := r.Payments().FindByOrderID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		if err != nil {
			return errDB
		}
		if p.Status == model.PaymentStatusPaid {
			return fmt.Errorf("%w: already paid", ErrInvalidTransition)
		}
		existing = &p
		return nil
	})
	if err != nil {
		return InitiatePaymentOutput{}, err
	}

	// 既に開始済みなら同じハンドルを返す
	if existing != nil {
		return toInitiateOutput(*existing), nil
	}

	amount := model.ToMinorUnits(order.TotalPrice)
	intent, err := u.gateway.CreateIntent(ctx, orderID, amount, u.currency)
	if err != nil {
		u.compensate(ctx, orderID, compensateGatewayError, err)
		return InitiatePaymentOutput{}, fmt.Errorf("%w: %v", ErrPaymentInitiationFailed, err)
	}
	if intent.Amount != amount {
		mismatch := fmt.Errorf("gateway amount %d, order amount %d", intent.Amount, amount)
		u.compensate(ctx, orderID, compensateAmountMismatch, mismatch)
		return InitiatePaymentOutput{}, fmt.Errorf("%w: %v", ErrPaymentInitiationFailed, mismatch)
	}

	currency := intent.Currency
	if currency == "" {
		currency = u.currency
	}

	var created model.Payment
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// ゲートウェイ呼び出し中に中断・キャンセルされていないかロックして確認
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errDB
		}
		if o.Status != model.OrderStatusPending {
			return fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
		}

		p, err := r.Payments().Create(ctx, model.Payment{
			OrderID:         orderID,
			GatewayIntentID: intent.ID,
			Amount:          amount,
			Currency:        currency,
			Status:          model.PaymentStatusPending,
		})
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if errors.Is(err, repo.ErrConflict) {
		// 同時に開始された側の記録を返す
		p, ferr := u.findPayment(ctx, orderID)
		if ferr != nil {
			return InitiatePaymentOutput{}, ferr
		}
		return toInitiateOutput(p), nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
		// 注文側が先に片付いている。intentは記録せず捨てる
		u.log.Warn("order changed during payment initiation, intent discarded",
			zap.Int64("order_id", orderID),
			zap.String("intent_id", intent.ID),
			zap.Error(err),
		)
		return InitiatePaymentOutput{}, err
	}
	if err != nil {
		u.compensate(ctx, orderID, compensatePaymentWrite, err)
		return InitiatePaymentOutput{}, fmt.Errorf("%w: %v", ErrPaymentInitiationFailed, err)
	}

	metrics.RecordPayment(metrics.OutcomeInitiated)
	u.log.Info("payment initiated",
		zap.Int64("order_id", orderID),
		zap.String("intent_id", created.GatewayIntentID),
		zap.Int64("amount", created.Amount),
	)
	return toInitiateOutput(created), nil
}

// ConfirmPayment はレシートを検証する。
// 一致: paymentをpaid・注文をSUCCESSに（同じTx）、その後カートを空にする。
// 不一致: paymentだけfailedにして注文はPENDINGのまま（paid済みは上書きしない）。
// 確認中に注文がキャンセルされていたら、paidだけ記録して返金要のログを出す。
func (u *PaymentUsecase) ConfirmPayment(ctx context.Context, userID int64, orderID int64, rc Receipt) (ConfirmPaymentOutput, error) {
	if userID <= 0 {
		return ConfirmPaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return ConfirmPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid order_id")
	}
	rc.IntentID = strings.TrimSpace(rc.IntentID)
	rc.PaymentID = strings.TrimSpace(rc.PaymentID)
	rc.Signature = strings.TrimSpace(rc.Signature)
	if rc.IntentID == "" || rc.PaymentID == "" || rc.Signature == "" {
		return ConfirmPaymentOutput{}, NewHTTPError(http.StatusBadRequest, "invalid receipt")
	}

	var (
		order   model.Order
		payment model.Payment
	)
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := u.ownedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}
		p, err := r.Payments().FindByOrderID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errDB
		}
		order, payment = o, p
		return nil
	})
	if err != nil {
		return ConfirmPaymentOutput{}, err
	}

	valid := rc.IntentID == payment.GatewayIntentID &&
		u.gateway.VerifyReceipt(rc.IntentID, rc.PaymentID, rc.Signature)

	if payment.Status == model.PaymentStatusPaid {
		if !valid {
			return ConfirmPaymentOutput{}, ErrSignatureMismatch
		}
		return ConfirmPaymentOutput{OrderID: orderID, OrderStatus: order.Status, PaymentStatus: payment.Status}, nil
	}

	if !valid {
		metrics.RecordPayment(metrics.OutcomeSignatureMismatch)
		u.log.Warn("payment signature mismatch",
			zap.Int64("order_id", orderID),
			zap.String("intent_id", rc.IntentID),
			zap.String("payment_id", rc.PaymentID),
		)
		err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			// 検証中に正しいレシートで確定していればそのまま残す
			if _, err := r.Payments().UpdateStatusUnlessPaid(ctx, payment.ID, model.PaymentStatusFailed, rc.PaymentID); err != nil {
				return errDB
			}
			return nil
		})
		if err != nil {
			return ConfirmPaymentOutput{}, err
		}
		return ConfirmPaymentOutput{}, ErrSignatureMismatch
	}

	var (
		current  model.Order
		advanced bool
		captured bool
	)
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		ok, err := r.Orders().CompareAndSetStatus(ctx, orderID, model.OrderStatusPending, model.OrderStatusSuccess)
		if err != nil {
			return errDB
		}
		advanced = ok

		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errDB
		}
		current = o

		// 注文がPENDINGでなくなっていても、支払い自体はゲートウェイで済んでいるので記録する
		captured, err = r.Payments().UpdateStatusUnlessPaid(ctx, payment.ID, model.PaymentStatusPaid, rc.PaymentID)
		if err != nil {
			return errDB
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		u.log.Warn("payment captured for deleted order, refund required",
			zap.Int64("order_id", orderID),
			zap.String("payment_id", rc.PaymentID),
			zap.Int64("amount", payment.Amount),
		)
		return ConfirmPaymentOutput{}, err
	}
	if err != nil {
		return ConfirmPaymentOutput{}, err
	}

	if !advanced {
		if current.Status == model.OrderStatusCancelled {
			if captured {
				metrics.RecordPayment(metrics.OutcomePaid)
				u.log.Warn("paid order cancelled, refund required",
					zap.Int64("order_id", orderID),
					zap.String("payment_id", rc.PaymentID),
					zap.String("total", current.TotalPrice.StringFixed(2)),
				)
			}
			return ConfirmPaymentOutput{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, current.Status)
		}
		// 同じレシートの並行確認が先に確定させた
		return ConfirmPaymentOutput{OrderID: orderID, OrderStatus: current.Status, PaymentStatus: model.PaymentStatusPaid}, nil
	}

	metrics.RecordPayment(metrics.OutcomePaid)
	u.log.Info("payment confirmed",
		zap.Int64("order_id", orderID),
		zap.String("payment_id", rc.PaymentID),
	)

	if err := u.cart.Clear(ctx, userID); err != nil {
		u.log.Error("clear cart after payment failed",
			zap.Int64("order_id", orderID), zap.Int64("user_id", userID), zap.Error(err))
	}

	return ConfirmPaymentOutput{
		OrderID:       orderID,
		OrderStatus:   model.OrderStatusSuccess,
		PaymentStatus: model.PaymentStatusPaid,
	}, nil
}

// AbandonPayment は決済画面を閉じたときの補償。
// オンライン・PENDING・未払いの注文だけを削除する。
func (u *PaymentUsecase) AbandonPayment(ctx context.Context, userID int64, orderID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errDB
		}
		if o.UserID != userID {
			return ErrNotFound
		}
		if o.PaymentMethod != model.PaymentOnline || o.Status != model.OrderStatusPending {
			return fmt.Errorf("%w: cannot abandon %s %s order", ErrInvalidTransition, o.PaymentMethod, o.Status)
		}

		p, err := r.Payments().FindByOrderID(ctx, orderID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return errDB
		}
		if err == nil && p.Status == model.PaymentStatusPaid {
			return fmt.Errorf("%w: already paid", ErrInvalidTransition)
		}

		return deleteOrderTx(ctx, r, orderID)
	})

	metrics.RecordCompensation("abandoned", err)
	if err != nil {
		return err
	}
	u.log.Info("order abandoned", zap.Int64("order_id", orderID), zap.Int64("user_id", userID))
	return nil
}

// 補償の削除は呼び出し元のキャンセルに巻き込まれないようにする
func (u *PaymentUsecase) compensate(ctx context.Context, orderID int64, reason string, cause error) {
	metrics.RecordPayment(metrics.OutcomeInitiationFailed)

	err := u.orders.DeleteOrder(context.WithoutCancel(ctx), orderID)
	metrics.RecordCompensation(reason, err)
	if err != nil {
		u.log.Error("compensating order delete failed",
			zap.Int64("order_id", orderID),
			zap.String("reason", reason),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	u.log.Warn("order deleted after payment initiation failure",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason),
		zap.NamedError("cause", cause),
	)
}

func (u *PaymentUsecase) ownedOrder(ctx context.Context, r repo.TxRepos, userID, orderID int64) (model.Order, error) {
	o, err := r.Orders().FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, errDB
	}
	//他人の注文は存在しない扱い
	if o.UserID != userID {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (u *PaymentUsecase) findPayment(ctx context.Context, orderID int64) (model.Payment, error) {
	var p model.Payment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		found, err := r.Payments().FindByOrderID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errDB
		}
		p = found
		return nil
	})
	return p, err
}

func toInitiateOutput(p model.Payment) InitiatePaymentOutput {
	return InitiatePaymentOutput{
		OrderID:  p.OrderID,
		IntentID: p.GatewayIntentID,
		Amount:   p.Amount,
		Currency: p.Currency,
	}
}
