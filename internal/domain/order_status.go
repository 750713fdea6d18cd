package domain

type OrderStatus string

const (
	OrderStatusNew            OrderStatus = "NEW"
	OrderStatusConfirmed      OrderStatus = "CONFIRMED"
	OrderStatusReadyForPickup OrderStatus = "READY_FOR_PICKUP"
	OrderStatusPickedUp       OrderStatus = "PICKED_UP"
	OrderStatusCancelled      OrderStatus = "CANCELLED"
	OrderStatusRefunded       OrderStatus = "REFUNDED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:            {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusReadyForPickup, OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusReadyForPickup: {OrderStatusPickedUp, OrderStatusCancelled},
	OrderStatusPickedUp:       {OrderStatusRefunded},
}

// CanTransitionTo reports whether the order lifecycle allows moving from one
// status to another. Cancelled and refunded are terminal.
func CanTransitionTo(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefunded
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}
