package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	cases := map[string]OrderStatus{
		"awaiting payment confirmation": OrderStatusAwaitingPayment,
		"awaiting_payment":              OrderStatusAwaitingPayment,
		"Processing":                    OrderStatusProcessing,
		"complete":                      OrderStatusComplete,
		"canceled":                      OrderStatusCancelled,
	}
	for raw, want := range cases {
		got, err := ParseOrderStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseOrderStatus("shipped")
	assert.Error(t, err)
}

func TestTransitionTableRejectsLeavingTerminalStates(t *testing.T) {
	assert.True(t, OrderStatusAwaitingPayment.CanTransition(OrderStatusProcessing))
	assert.True(t, OrderStatusProcessing.CanTransition(OrderStatusComplete))
	assert.False(t, OrderStatusProcessing.CanTransition(OrderStatusAwaitingPayment))
	assert.False(t, OrderStatusComplete.CanTransition(OrderStatusProcessing))
	assert.False(t, OrderStatusComplete.CanTransition(OrderStatusCancelled))
	assert.False(t, OrderStatusCancelled.CanTransition(OrderStatusComplete))
	assert.True(t, OrderStatusComplete.Terminal())
	assert.False(t, OrderStatus("shipped").Valid())
}

func TestProductAvailableNeverNegative(t *testing.T) {
	assert.Equal(t, 3, Product{Quantity: 5, Reserved: 2}.Available())
	assert.Equal(t, 0, Product{Quantity: 2, Reserved: 5}.Available())
}
