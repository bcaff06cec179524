package model

import "time"

// カートの明細（ユーザーごと）
// 数量0は削除扱いなので、保存される行は常にquantity>=1。
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"not null;index" json:"user_id"`
	Ref       ItemRef   `gorm:"embedded" json:"ref"`
	Variant   Variant   `gorm:"embedded" json:"variant"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
