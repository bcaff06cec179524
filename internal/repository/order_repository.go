package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// 行ロック付き（Tx内で使う）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)
	// 現在のstatusがfromのときだけtoへ更新。更新できたかを返す
	CompareAndSetStatus(ctx context.Context, orderID int64, from, to model.OrderStatus) (bool, error)
	Delete(ctx context.Context, orderID int64) error

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
