package mq

import (
	"context"
	"fmt"

	"storefront/internal/domain/model"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// 実際に通知を送る側
type Handler interface {
	NotifyOrderAccepted(ctx context.Context, n model.OrderAcceptedNotice) error
}

// StartOrderAcceptedConsumer はctxが終わるまでorder.acceptedを読み続ける。
// 処理に失敗したメッセージは再投入しない。
func StartOrderAcceptedConsumer(ctx context.Context, conn *amqp.Connection, h Handler, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(OrderAcceptedQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(
		OrderAcceptedQueue,
		"storefront-notifier",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				log.Info("stopping order.accepted consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Warn("order.accepted channel closed")
					return
				}

				if err := handleOrderAccepted(ctx, h, msg.Body); err != nil {
					log.Error("handle order.accepted failed",
						zap.String("message_id", msg.MessageId), zap.Error(err))
					_ = msg.Nack(false, false)
					continue
				}
				_ = msg.Ack(false)
			}
		}
	}()

	return nil
}

func handleOrderAccepted(ctx context.Context, h Handler, body []byte) error {
	n, err := decodeOrderAccepted(body)
	if err != nil {
		return err
	}
	return h.NotifyOrderAccepted(ctx, n)
}
