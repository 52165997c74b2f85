package domain

import "time"

type PaymentStatus string

const (
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentRejected PaymentStatus = "REJECTED"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentApproved || s == PaymentRejected
}

// PaymentHandle is what the backend returns for the external payment page.
type PaymentHandle struct {
	FormURL string `json:"form_url" bson:"form_url"`
	Handle  string `json:"handle" bson:"handle"`
}

// PaymentOutcome is delivered asynchronously by the payment provider, either
// through the HTTP callback or the payment-outcomes topic.
type PaymentOutcome struct {
	SessionID     string        `json:"session_id"`
	OrderID       string        `json:"order_id"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id"`
	Reason        string        `json:"reason,omitempty"`
}

type Payment struct {
	Handle        *PaymentHandle `json:"handle,omitempty" bson:"handle,omitempty"`
	Status        PaymentStatus  `json:"status,omitempty" bson:"status,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	Synthetic     bool           `json:"synthetic" bson:"synthetic"`
	RecordedAt    *time.Time     `json:"recorded_at,omitempty" bson:"recorded_at,omitempty"`
}
