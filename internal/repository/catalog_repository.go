package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 商品カタログの参照だけを約束（CRUDは別管理）
// 削除済みの商品はErrNotFound。
type CatalogRepository interface {
	FindByRef(ctx context.Context, ref model.ItemRef) (model.CatalogItem, error)
}
