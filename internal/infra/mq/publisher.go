package mq

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/domain/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 3 * time.Second

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// Publisher は注文受付イベントをキューに積む（送信は別のconsumerが担当）。
type Publisher struct {
	ch  *amqp.Channel
	log *zap.Logger
}

func NewPublisher(conn *amqp.Connection, log *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// キューが無くてもpublishが落ちないように先に宣言
	if _, err := ch.QueueDeclare(OrderAcceptedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare %s: %w", OrderAcceptedQueue, err)
	}

	return &Publisher{ch: ch, log: log}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

func (p *Publisher) NotifyOrderAccepted(ctx context.Context, n model.OrderAcceptedNotice) error {
	body, err := encodeOrderAccepted(n)
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(
		pubCtx,
		"",
		OrderAcceptedQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.EventID,
			Timestamp:    n.AcceptedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", OrderAcceptedQueue, err)
	}

	p.log.Debug("order accepted event published",
		zap.String("event_id", n.EventID), zap.Int64("order_id", n.OrderID))
	return nil
}
