package notify

import (
	"context"
	"fmt"

	"storefront/internal/domain/model"

	"go.uber.org/zap"
)

// LogSender は通知をメールの代わりにログへ出す。
// メールテンプレートや送信は外部の担当。
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) NotifyOrderAccepted(ctx context.Context, n model.OrderAcceptedNotice) error {
	if n.Email == "" {
		return fmt.Errorf("order %d: no recipient", n.OrderID)
	}

	fields := []zap.Field{
		zap.String("event_id", n.EventID),
		zap.Int64("order_id", n.OrderID),
		zap.String("to", n.Email),
		zap.Int("items", len(n.Items)),
		zap.String("total", n.TotalPrice.StringFixed(2)),
	}
	if n.Address != nil {
		fields = append(fields, zap.String("ship_to", fmt.Sprintf("%s, %s %s", n.Address.Line1, n.Address.City, n.Address.PostalCode)))
	}

	s.log.Info("order accepted mail", fields...)
	return nil
}
