package domain

import "time"

// OrderRecord is the journal entry kept for every order created by a session.
type OrderRecord struct {
	SessionID     string
	OrderID       string
	Status        OrderStatus
	Amount        float64
	Currency      string
	PaymentHandle string
	TransactionID string
	Reason        string
	Cart          []CartItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
