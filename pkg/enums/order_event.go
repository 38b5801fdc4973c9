package enums

// OrderEvent is the notification emitted after an order status change commits.
type OrderEvent string

const (
	OrderEventPaid      OrderEvent = "order.paid"
	OrderEventCancelled OrderEvent = "order.cancelled"
	OrderEventShipped   OrderEvent = "order.shipped"
	OrderEventDelivered OrderEvent = "order.delivered"
	OrderEventClaimed   OrderEvent = "order.claimed"
)

// String implements fmt.Stringer.
func (e OrderEvent) String() string {
	return string(e)
}

// OrderEventFor maps a target status to the event announcing it.
func OrderEventFor(status OrderStatus) (OrderEvent, bool) {
	switch status {
	case OrderStatusPaid:
		return OrderEventPaid, true
	case OrderStatusCancelled:
		return OrderEventCancelled, true
	case OrderStatusShipped:
		return OrderEventShipped, true
	case OrderStatusDelivered:
		return OrderEventDelivered, true
	default:
		return "", false
	}
}
