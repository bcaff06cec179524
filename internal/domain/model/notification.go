package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文受付の通知内容（メール送信側に渡す）
type OrderAcceptedNotice struct {
	EventID    string          `json:"event_id"`
	OrderID    int64           `json:"order_id"`
	UserID     int64           `json:"user_id"`
	Email      string          `json:"email"`
	Address    *Address        `json:"address,omitempty"`
	Items      []NoticeItem    `json:"items"`
	TotalPrice decimal.Decimal `json:"total_price"`
	AcceptedAt time.Time       `json:"accepted_at"`
}

type NoticeItem struct {
	Name      string          `json:"name"`
	Variant   Variant         `json:"variant"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}
