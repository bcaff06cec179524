package model

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusSuccess   OrderStatus = "SUCCESS"
	OrderStatusAccepted  OrderStatus = "ACCEPTED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// 許可される遷移表
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:  {OrderStatusSuccess, OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusSuccess:  {OrderStatusAccepted, OrderStatusCancelled},
	OrderStatusAccepted: {OrderStatusDelivered, OrderStatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	switch st {
	case OrderStatusPending, OrderStatusSuccess, OrderStatusAccepted, OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

// 終端（DELIVERED / CANCELLED）
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// 同じstatusへの遷移は含まない（呼び出し側でno-op扱い）
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
