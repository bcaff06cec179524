package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type addressGormRepository struct {
	db *gorm.DB
}

// DI
func NewAddressGormRepository(db *gorm.DB) repo.AddressRepository {
	return &addressGormRepository{db: db}
}

// ユーザーの住所一覧を返す（デフォルトが先頭）
func (r *addressGormRepository) ListByUserID(ctx context.Context, userID int64) ([]model.Address, error) {
	var list []model.Address
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// デフォルト住所を1件取得
func (r *addressGormRepository) FindDefaultByUserID(ctx context.Context, userID int64) (model.Address, error) {
	var a model.Address
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_default DESC, id ASC").
		First(&a).Error
	if err != nil {
		return model.Address{}, translateErr(err)
	}
	return a, nil
}
