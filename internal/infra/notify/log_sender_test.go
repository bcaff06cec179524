package notify

import (
	"context"
	"testing"

	"storefront/internal/domain/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSender_NotifyOrderAccepted(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	err := s.NotifyOrderAccepted(context.Background(), model.OrderAcceptedNotice{
		EventID:    "evt-1",
		OrderID:    9,
		Email:      "a@example.com",
		Address:    &model.Address{Line1: "1 MG Road", City: "Pune", PostalCode: "411001"},
		TotalPrice: decimal.NewFromInt(349),
	})
	assert.NoError(t, err)

	entries := logs.FilterMessage("order accepted mail").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(9), fields["order_id"])
		assert.Equal(t, "a@example.com", fields["to"])
		assert.Equal(t, "349.00", fields["total"])
		assert.Equal(t, "1 MG Road, Pune 411001", fields["ship_to"])
	}
}

func TestLogSender_NoRecipient(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	err := s.NotifyOrderAccepted(context.Background(), model.OrderAcceptedNotice{OrderID: 9})
	assert.Error(t, err)
	assert.Equal(t, 0, logs.Len())
}
