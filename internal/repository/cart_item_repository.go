package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartItemRepository interface {
	ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error)
	// 同じ商品+バリエーションがあれば+1、無ければ数量1で作成（1文で原子的に）
	Increment(ctx context.Context, userID int64, ref model.ItemRef, v model.Variant) error
	// -1して0になったら削除。無ければ何もしない
	Decrement(ctx context.Context, userID int64, ref model.ItemRef, v model.Variant) error
	// 所有者でないならErrNotFound
	DeleteByID(ctx context.Context, userID int64, cartItemID int64) error
	DeleteByUserID(ctx context.Context, userID int64) error
}
