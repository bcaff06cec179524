package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderUsecase struct {
	tx   repo.TransactionManager
	cart *CartUsecase
	log  *zap.Logger
}

func NewOrderUsecase(tx repo.TransactionManager, cart *CartUsecase, log *zap.Logger) *OrderUsecase {
	return &OrderUsecase{tx: tx, cart: cart, log: log}
}

// 注文明細の商品が削除済みならnil
type ProductSummary struct {
	Ref    model.ItemRef   `json:"ref"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
	Active bool            `json:"active"`
}

type OrderItemOutput struct {
	ID        int64           `json:"id"`
	Ref       model.ItemRef   `json:"ref"`
	Variant   model.Variant   `json:"variant"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Product   *ProductSummary `json:"product"`
}

type OrderOutput struct {
	ID            int64               `json:"id"`
	UserID        int64               `json:"user_id"`
	Status        model.OrderStatus   `json:"status"`
	PaymentMethod model.PaymentMethod `json:"payment_method"`
	TotalPrice    decimal.Decimal     `json:"total_price"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []OrderItemOutput   `json:"items"`
}

// Changed=falseなら既に目的のstatusだった
type TransitionResult struct {
	Order   model.Order `json:"order"`
	Changed bool        `json:"changed"`
}

// CreateOrder はスナップショットから注文と明細を1つのTxで作る。
// 明細0件はErrEmptyCart（何も書き込まない）。
func (u *OrderUsecase) CreateOrder(ctx context.Context, userID int64, snap CartSnapshot, method model.PaymentMethod) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if !method.Valid() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_method")
	}
	if len(snap) == 0 {
		return OrderOutput{}, ErrEmptyCart
	}

	items := make([]model.OrderItem, 0, len(snap))
	total := decimal.Zero
	for _, line := range snap {
		if err := line.Ref.Validate(); err != nil {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid ref")
		}
		if line.Quantity < 1 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
		if line.UnitPrice.IsNegative() {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid price")
		}

		//注文時点の価格で固定
		subtotal := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		items = append(items, model.OrderItem{
			Ref:                 line.Ref,
			Variant:             line.Variant,
			ProductNameSnapshot: line.Name,
			UnitPriceSnapshot:   line.UnitPrice,
			Quantity:            line.Quantity,
			Subtotal:            subtotal,
		})
		total = total.Add(subtotal)
	}
	total = total.Add(model.DeliveryFee(method))

	order := model.Order{
		UserID:        userID,
		TotalPrice:    total,
		PaymentMethod: method,
		Status:        model.OrderStatusPending,
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return errDB
		}
		if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
			return errDB
		}
		order.ID = orderID
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	for i := range items {
		items[i].OrderID = order.ID
	}
	u.log.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("payment_method", string(method)),
		zap.String("total", total.StringFixed(2)),
	)
	return toOrderOutput(order, items, nil), nil
}

// Checkout はカートから注文を作る。CODはこの時点でカートを空にする。
// オンライン決済のカートは支払い確認後に空にする。
func (u *OrderUsecase) Checkout(ctx context.Context, userID int64, method model.PaymentMethod) (OrderOutput, error) {
	if !method.Valid() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid payment_method")
	}

	snap, err := u.cart.Snapshot(ctx, userID)
	if err != nil {
		return OrderOutput{}, err
	}

	out, err := u.CreateOrder(ctx, userID, snap, method)
	if err != nil {
		return OrderOutput{}, err
	}

	if method == model.PaymentCOD {
		if err := u.cart.Clear(ctx, userID); err != nil {
			//注文は確定済みなので失敗はログだけ
			u.log.Error("clear cart after cod order failed",
				zap.Int64("order_id", out.ID), zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return out, nil
}

// 管理者・内部用（所有者チェックなし）
func (u *OrderUsecase) GetOrder(ctx context.Context, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errDB
		}
		out, err = u.joinItems(ctx, r, o)
		return err
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 他人の注文は存在しない扱い
func (u *OrderUsecase) GetMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	out, err := u.GetOrder(ctx, orderID)
	if err != nil {
		return OrderOutput{}, err
	}
	if out.UserID != userID {
		return OrderOutput{}, ErrNotFound
	}
	return out, nil
}

func (u *OrderUsecase) ListOrdersForUser(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var outs []OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//ページングは固定
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return errDB
		}
		outs, err = u.joinAll(ctx, r, orders)
		return err
	})
	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) ListAllOrders(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	if f.Page < 1 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}

	var outs []OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return errDB
		}
		outs, err = u.joinAll(ctx, r, orders)
		return err
	})
	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// Transition は遷移表に沿ってstatusを変える。
// 同じstatusならno-op、表に無い遷移はErrInvalidTransition。
// actorID>0なら監査ログを同じTxで残す。
func (u *OrderUsecase) Transition(ctx context.Context, actorID int64, orderID int64, to model.OrderStatus) (TransitionResult, error) {
	return u.transition(ctx, actorID, orderID, to, nil)
}

// guardは遷移表とは別の条件（CODのみ受付など）
func (u *OrderUsecase) transition(
	ctx context.Context,
	actorID int64,
	orderID int64,
	to model.OrderStatus,
	guard func(o model.Order) error,
) (TransitionResult, error) {
	if orderID <= 0 {
		return TransitionResult{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if _, ok := model.ParseOrderStatus(string(to)); !ok {
		return TransitionResult{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var res TransitionResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return errDB
		}

		// すでに同じなら何もしない
		if o.Status == to {
			res = TransitionResult{Order: o}
			return nil
		}
		if !o.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
		}
		if guard != nil {
			if err := guard(o); err != nil {
				return err
			}
		}

		ok, err := r.Orders().CompareAndSetStatus(ctx, orderID, o.Status, to)
		if err != nil {
			return errDB
		}
		if !ok {
			//別の更新が先に入った
			cur, err := r.Orders().FindByID(ctx, orderID)
			if err != nil {
				return errDB
			}
			if cur.Status == to {
				res = TransitionResult{Order: cur}
				return nil
			}
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, to)
		}

		before := o.Status
		o.Status = to
		res = TransitionResult{Order: o, Changed: true}

		if actorID > 0 {
			if err := r.AuditLogs().Create(ctx, model.AuditLog{
				ActorUserID:  actorID,
				Action:       model.AuditActionUpdateOrderStatus,
				ResourceType: model.AuditResourceOrder,
				ResourceID:   orderID,
				BeforeJSON:   `{"status":"` + string(before) + `"}`,
				AfterJSON:    `{"status":"` + string(to) + `"}`,
				CreatedAt:    time.Now(),
			}); err != nil {
				return errDB
			}
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	return res, nil
}

// DeleteOrder は注文・明細・paymentを1つのTxで消す（補償専用）。
func (u *OrderUsecase) DeleteOrder(ctx context.Context, orderID int64) error {
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		return deleteOrderTx(ctx, r, orderID)
	})
}

func deleteOrderTx(ctx context.Context, r repo.TxRepos, orderID int64) error {
	if err := r.Payments().DeleteByOrderID(ctx, orderID); err != nil {
		return errDB
	}
	if err := r.OrderItems().DeleteByOrderID(ctx, orderID); err != nil {
		return errDB
	}
	if err := r.Orders().Delete(ctx, orderID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return errDB
	}
	return nil
}

func (u *OrderUsecase) joinAll(ctx context.Context, r repo.TxRepos, orders []model.Order) ([]OrderOutput, error) {
	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		out, err := u.joinItems(ctx, r, o)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// 明細ごとにカタログを引く。削除済み商品はProduct=nil
func (u *OrderUsecase) joinItems(ctx context.Context, r repo.TxRepos, o model.Order) (OrderOutput, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, errDB
	}

	products := make(map[model.ItemRef]*ProductSummary, len(items))
	for _, it := range items {
		if _, seen := products[it.Ref]; seen {
			continue
		}
		c, err := r.Catalog().FindByRef(ctx, it.Ref)
		if errors.Is(err, repo.ErrNotFound) {
			products[it.Ref] = nil
			continue
		}
		if err != nil {
			return OrderOutput{}, errDB
		}
		products[it.Ref] = &ProductSummary{Ref: c.Ref, Name: c.Name, Price: c.Price, Active: c.Active}
	}
	return toOrderOutput(o, items, products), nil
}

func toOrderOutput(o model.Order, items []model.OrderItem, products map[model.ItemRef]*ProductSummary) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ID:        it.ID,
			Ref:       it.Ref,
			Variant:   it.Variant,
			Name:      it.ProductNameSnapshot,
			UnitPrice: it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
			Product:   products[it.Ref],
		})
	}

	return OrderOutput{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		TotalPrice:    o.TotalPrice,
		CreatedAt:     o.CreatedAt,
		Items:         outItems,
	}
}
