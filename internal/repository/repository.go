package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrIllegalTransition = errors.New("illegal transition of order status")
)

const (
	EventOrderCompleted  = "checkout.order_completed"
	EventPaymentRejected = "checkout.payment_rejected"
	EventPaymentExpired  = "checkout.payment_expired"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type OutboxEvent struct {
	ID          int
	AggregateId string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// JournalRepository is the order journal plus the outbox it feeds.
type JournalRepository interface {
	SaveOrder(ctx context.Context, order *domain.OrderRecord) error
	CompleteOrder(ctx context.Context, orderID, transactionID string) error
	RejectOrder(ctx context.Context, orderID, reason string) error
	ExpireStaleOrders(ctx context.Context, olderThan time.Duration) ([]string, error)
	GetOrder(ctx context.Context, orderID string) (*domain.OrderRecord, error)
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
	RunMigrations(*Credentials) error
	Close() error
}

// orderEvent is the payload written to the outbox for every status change.
type orderEvent struct {
	OrderID       string            `json:"order_id"`
	SessionID     string            `json:"session_id"`
	Status        string            `json:"status"`
	Amount        float64           `json:"amount"`
	Currency      string            `json:"currency"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	Items         []domain.CartItem `json:"items,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
