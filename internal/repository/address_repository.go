package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 住所の参照窓口（通知で使う）
type AddressRepository interface {
	//ユーザーが持つ住所一覧を返す
	ListByUserID(ctx context.Context, userID int64) ([]model.Address, error)

	//デフォルト住所。無ければ最初の住所、1件も無ければErrNotFound
	FindDefaultByUserID(ctx context.Context, userID int64) (model.Address, error)
}
