package domain

import (
	"fmt"
	"strings"
)

type OrderStatus string

const (
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusComplete        OrderStatus = "complete"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// legalTransitions lists the edges an order may take. Staying in the same
// status is handled separately as a no-op.
var legalTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusAwaitingPayment: {OrderStatusProcessing, OrderStatusComplete, OrderStatusCancelled},
	OrderStatusProcessing:      {OrderStatusComplete, OrderStatusCancelled},
	OrderStatusComplete:        nil,
	OrderStatusCancelled:       nil,
}

// ParseOrderStatus accepts the canonical names plus the human spellings
// used by the storefront ("awaiting payment confirmation").
func ParseOrderStatus(raw string) (OrderStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	switch normalized {
	case "awaiting_payment", "awaiting_payment_confirmation":
		return OrderStatusAwaitingPayment, nil
	case string(OrderStatusProcessing):
		return OrderStatusProcessing, nil
	case string(OrderStatusComplete), "completed":
		return OrderStatusComplete, nil
	case string(OrderStatusCancelled), "canceled":
		return OrderStatusCancelled, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

func (s OrderStatus) Valid() bool {
	_, ok := legalTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusComplete || s == OrderStatusCancelled
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
