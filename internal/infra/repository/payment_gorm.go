package repository

import (
	"context"

	"storefront/internal/domain/model"

	"gorm.io/gorm"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

// order_idは一意なので、2件目はErrConflictになる
func (r *PaymentGormRepository) Create(ctx context.Context, p model.Payment) (model.Payment, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Payment{}, translateErr(err)
	}
	return p, nil
}

func (r *PaymentGormRepository) FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error
	if err != nil {
		return model.Payment{}, translateErr(err)
	}
	return p, nil
}

// 確定済み（paid）は条件で弾くので、後から来た偽レシートで上書きされない
func (r *PaymentGormRepository) UpdateStatusUnlessPaid(ctx context.Context, paymentID int64, status model.PaymentStatus, gatewayPaymentID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status <> ?", paymentID, model.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"status":             status,
			"gateway_payment_id": gatewayPaymentID,
		})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PaymentGormRepository) DeleteByOrderID(ctx context.Context, orderID int64) error {
	return r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&model.Payment{}).Error
}
