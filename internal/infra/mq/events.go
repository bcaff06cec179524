package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/domain/model"
)

const (
	OrderAcceptedQueue = "order.accepted"

	orderAcceptedEventType = "OrderAccepted"
	orderAcceptedVersion   = 1
)

// キューに流すイベントの共通の外側
type Envelope[T any] struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	Version    int       `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

func encodeOrderAccepted(n model.OrderAcceptedNotice) ([]byte, error) {
	body, err := json.Marshal(Envelope[model.OrderAcceptedNotice]{
		EventID:    n.EventID,
		EventType:  orderAcceptedEventType,
		Version:    orderAcceptedVersion,
		OccurredAt: n.AcceptedAt,
		Payload:    n,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", orderAcceptedEventType, err)
	}
	return body, nil
}

func decodeOrderAccepted(body []byte) (model.OrderAcceptedNotice, error) {
	var env Envelope[model.OrderAcceptedNotice]
	if err := json.Unmarshal(body, &env); err != nil {
		return model.OrderAcceptedNotice{}, fmt.Errorf("unmarshal: %w", err)
	}
	if env.EventType != orderAcceptedEventType {
		return model.OrderAcceptedNotice{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	if env.Payload.OrderID <= 0 {
		return model.OrderAcceptedNotice{}, fmt.Errorf("missing order id")
	}
	return env.Payload, nil
}
