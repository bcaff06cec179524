package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	all := []OrderStatus{
		OrderStatusPending, OrderStatusSuccess, OrderStatusAccepted, OrderStatusDelivered, OrderStatusCancelled,
	}
	allowed := map[OrderStatus]map[OrderStatus]bool{
		OrderStatusPending:  {OrderStatusSuccess: true, OrderStatusAccepted: true, OrderStatusCancelled: true},
		OrderStatusSuccess:  {OrderStatusAccepted: true, OrderStatusCancelled: true},
		OrderStatusAccepted: {OrderStatusDelivered: true, OrderStatusCancelled: true},
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	assert.True(t, OrderStatusDelivered.IsTerminal())
	assert.True(t, OrderStatusCancelled.IsTerminal())
	assert.False(t, OrderStatusPending.IsTerminal())
	assert.False(t, OrderStatusAccepted.IsTerminal())
}

func TestParseOrderStatus(t *testing.T) {
	st, ok := ParseOrderStatus("SUCCESS")
	assert.True(t, ok)
	assert.Equal(t, OrderStatusSuccess, st)

	_, ok = ParseOrderStatus("success")
	assert.False(t, ok)
}
