package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 商品（カタログ側の管理。ここでは参照のみ）
// Sizes / Colors はカンマ区切り。空なら選択肢なし。
type Product struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string          `gorm:"type:varchar(255);not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Sizes     string          `gorm:"type:varchar(255);not null;default:''" json:"sizes"`
	Colors    string          `gorm:"type:varchar(255);not null;default:''" json:"colors"`
	IsActive  bool            `gorm:"not null;default:false" json:"is_active"`
	CreatedAt time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt  `gorm:"index" json:"-"`
}

// ユーザーがカスタマイズした商品
type CustomProduct struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64           `gorm:"not null;index" json:"user_id"`
	BaseProductID int64           `gorm:"not null;index" json:"base_product_id"`
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index" json:"-"`
}

// カタログから見た1商品（通常/カスタム共通）
type CatalogItem struct {
	Ref    ItemRef
	Name   string
	Price  decimal.Decimal
	Sizes  []string
	Colors []string
	Active bool
}

// 選んだサイズ・カラーが商品の選択肢にあるか。
// 選択肢を持たない商品は空文字だけ許可。
func (c CatalogItem) AllowsVariant(v Variant) bool {
	return allowed(c.Sizes, v.Size) && allowed(c.Colors, v.Color)
}

func allowed(options []string, v string) bool {
	if len(options) == 0 {
		return v == ""
	}
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

func SplitOptions(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
