package domain

type OrderStatus string

const (
	OrderStatusPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderStatusPaid           OrderStatus = "PAID"
	OrderStatusRejected       OrderStatus = "REJECTED"
	OrderStatusExpired        OrderStatus = "EXPIRED"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

// CanOrderTransitionTo guards journal status changes. Rejected and expired
// payments can be attempted again, so both may go back to PAYMENT_PENDING.
func CanOrderTransitionTo(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPaymentPending:
		return to == OrderStatusPaid || to == OrderStatusRejected || to == OrderStatusExpired
	case OrderStatusRejected:
		return to == OrderStatusPaymentPending || to == OrderStatusExpired
	case OrderStatusExpired:
		return to == OrderStatusPaymentPending
	default:
		return false
	}
}
