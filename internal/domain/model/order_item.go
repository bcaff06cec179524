package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。注文時点の名前・価格・バリエーションを固定で持つ。
type OrderItem struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64           `gorm:"not null;index" json:"order_id"`
	Ref                 ItemRef         `gorm:"embedded" json:"ref"`
	Variant             Variant         `gorm:"embedded" json:"variant"`
	ProductNameSnapshot string          `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	UnitPriceSnapshot   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price_snapshot"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	Subtotal            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`

	// 外部キー用（注文を消せば明細も消える）
	Order *Order `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"-"`
}
