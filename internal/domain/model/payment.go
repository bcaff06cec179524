package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// オンライン決済の記録（注文と1:1）
// Amountはゲートウェイの最小通貨単位。
type Payment struct {
	ID               int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID          int64         `gorm:"not null;uniqueIndex" json:"order_id"`
	GatewayIntentID  string        `gorm:"type:varchar(100);not null;index" json:"gateway_intent_id"`
	GatewayPaymentID string        `gorm:"type:varchar(100);not null;default:''" json:"gateway_payment_id"`
	Amount           int64         `gorm:"not null" json:"amount"`
	Currency         string        `gorm:"type:varchar(3);not null" json:"currency"`
	Status           PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt        time.Time     `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null;autoUpdateTime" json:"updated_at"`

	Order *Order `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
}

// ゲートウェイ側の支払いハンドル
type PaymentIntent struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

var minorUnitsPerMajor = decimal.NewFromInt(100)

// 金額を最小通貨単位に変換（349.00 -> 34900）
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitsPerMajor).Round(0).IntPart()
}
