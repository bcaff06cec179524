package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentOnline PaymentMethod = "ONLINE"
	PaymentCOD    PaymentMethod = "COD"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentOnline || m == PaymentCOD
}

// 代引き手数料
var DeliveryFeeCOD = decimal.NewFromInt(49)

// 支払方法ごとの配送料
func DeliveryFee(m PaymentMethod) decimal.Decimal {
	if m == PaymentCOD {
		return DeliveryFeeCOD
	}
	return decimal.Zero
}

// 注文。作成後に変わるのはstatusだけ。
type Order struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64           `gorm:"not null;index" json:"user_id"`
	TotalPrice    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(20);not null" json:"payment_method"`
	Status        OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
