package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartGormRepository(db *gorm.DB) *CartGormRepository {
	return &CartGormRepository{db: db}
}

// 明細の一意キー（Migrateで一意インデックスを作る）
var cartLineColumns = []clause.Column{
	{Name: "user_id"},
	{Name: "ref_kind"},
	{Name: "ref_id"},
	{Name: "size"},
	{Name: "color"},
}

// ユーザーのカート明細を一覧取得
func (r *CartGormRepository) ListByUserID(ctx context.Context, userID int64) ([]model.CartItem, error) {
	var items []model.CartItem

	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return []model.CartItem{}, err
	}

	return items, nil
}

// 同一商品+バリエーションは数量加算。
// INSERT ... ON CONFLICT DO UPDATE の1文なので、同時に追加されても行は重複しない。
func (r *CartGormRepository) Increment(ctx context.Context, userID int64, ref model.ItemRef, v model.Variant) error {
	now := time.Now()
	item := model.CartItem{
		UserID:    userID,
		Ref:       ref,
		Variant:   v,
		Quantity:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: cartLineColumns,
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("cart_items.quantity + 1"),
				"updated_at": now,
			}),
		}).
		Create(&item).Error
}

// 数量を1減らす。1の明細は削除。明細が無ければ何もしない。
func (r *CartGormRepository) Decrement(ctx context.Context, userID int64, ref model.ItemRef, v model.Variant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.CartItem{}).
			Where("user_id = ? AND ref_kind = ? AND ref_id = ? AND size = ? AND color = ?",
				userID, ref.Kind, ref.ID, v.Size, v.Color).
			Where("quantity > 1").
			Updates(map[string]interface{}{
				"quantity":   gorm.Expr("quantity - 1"),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		// 残り1（以下）なら行ごと消す
		return tx.
			Where("user_id = ? AND ref_kind = ? AND ref_id = ? AND size = ? AND color = ?",
				userID, ref.Kind, ref.ID, v.Size, v.Color).
			Delete(&model.CartItem{}).Error
	})
}

// 明細を削除（他人の明細は見つからない扱い）
func (r *CartGormRepository) DeleteByID(ctx context.Context, userID int64, cartItemID int64) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", cartItemID, userID).
		Delete(&model.CartItem{})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 指定ユーザーの明細を全削除
func (r *CartGormRepository) DeleteByUserID(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.CartItem{}).Error
}
