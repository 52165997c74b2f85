package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	slog.Info("connected to postgres", slog.String("host", cred.Host), slog.String("db", cred.DBName))
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "fixed_checkout_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// SaveOrder records a freshly created order as PAYMENT_PENDING. Saving an
// order that is already pending refreshes it; a rejected or expired one is
// reopened.
func (r *Repository) SaveOrder(ctx context.Context, order *domain.OrderRecord) error {
	cartJSON, err := json.Marshal(order.Cart)
	if err != nil {
		return fmt.Errorf("failed to marshal cart snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := lockOrder(ctx, tx, order.OrderID)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO checkout_orders (order_id, session_id, status, amount, currency, payment_handle, cart, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
			order.OrderID,
			order.SessionID,
			domain.OrderStatusPaymentPending,
			order.Amount,
			order.Currency,
			order.PaymentHandle,
			cartJSON)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	case err != nil:
		return err
	case current.Status == domain.OrderStatusPaymentPending ||
		domain.CanOrderTransitionTo(current.Status, domain.OrderStatusPaymentPending):
		_, err = tx.ExecContext(ctx,
			`UPDATE checkout_orders
			 SET status = $2, amount = $3, currency = $4, payment_handle = $5, cart = $6, reason = NULL, updated_at = NOW()
			 WHERE order_id = $1`,
			order.OrderID,
			domain.OrderStatusPaymentPending,
			order.Amount,
			order.Currency,
			order.PaymentHandle,
			cartJSON)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
	default:
		return fmt.Errorf("order %s is %s: %w", order.OrderID, current.Status, ErrIllegalTransition)
	}

	return tx.Commit()
}

// CompleteOrder marks the order PAID and writes the completion event in the
// same transaction. Completing a paid order again is a no-op.
func (r *Repository) CompleteOrder(ctx context.Context, orderID, transactionID string) error {
	return r.changeStatus(ctx, orderID, domain.OrderStatusPaid, EventOrderCompleted, transactionID, "")
}

// RejectOrder marks the order REJECTED and writes the rejection event.
func (r *Repository) RejectOrder(ctx context.Context, orderID, reason string) error {
	return r.changeStatus(ctx, orderID, domain.OrderStatusRejected, EventPaymentRejected, "", reason)
}

func (r *Repository) changeStatus(ctx context.Context, orderID string, to domain.OrderStatus, eventType, transactionID, reason string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	order, err := lockOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order.Status == to {
		return nil
	}
	if !domain.CanOrderTransitionTo(order.Status, to) {
		return fmt.Errorf("order %s from %s to %s: %w", orderID, order.Status, to, ErrIllegalTransition)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE checkout_orders
		 SET status = $2, transaction_id = COALESCE(NULLIF($3::text, ''), transaction_id), reason = NULLIF($4::text, ''), updated_at = NOW()
		 WHERE order_id = $1`,
		orderID, to, transactionID, reason)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	order.Status = to
	if transactionID != "" {
		order.TransactionID = transactionID
	}
	order.Reason = reason
	if err := insertEvent(ctx, tx, eventType, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status change: %w", err)
	}
	slog.InfoContext(ctx, "order status changed",
		logger.OrderID(orderID),
		slog.String("status", to.String()),
		slog.String("event_type", eventType))
	return nil
}

// ExpireStaleOrders moves orders left in PAYMENT_PENDING for longer than
// olderThan to EXPIRED, one expiry event per order, and returns their ids.
func (r *Repository) ExpireStaleOrders(ctx context.Context, olderThan time.Duration) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT order_id, session_id, status, amount, currency, payment_handle, COALESCE(transaction_id, ''), COALESCE(reason, ''), cart, created_at, updated_at
		 FROM checkout_orders
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at
		 FOR UPDATE SKIP LOCKED`,
		domain.OrderStatusPaymentPending, time.Now().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("query stale orders: %w", err)
	}

	var stale []*domain.OrderRecord
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		stale = append(stale, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	_ = rows.Close()

	ids := make([]string, 0, len(stale))
	for _, order := range stale {
		_, err := tx.ExecContext(ctx,
			`UPDATE checkout_orders SET status = $2, updated_at = NOW() WHERE order_id = $1`,
			order.OrderID, domain.OrderStatusExpired)
		if err != nil {
			return nil, fmt.Errorf("expire order %s: %w", order.OrderID, err)
		}
		order.Status = domain.OrderStatusExpired
		if err := insertEvent(ctx, tx, EventPaymentExpired, order); err != nil {
			return nil, err
		}
		ids = append(ids, order.OrderID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit expiry: %w", err)
	}
	return ids, nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID string) (*domain.OrderRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT order_id, session_id, status, amount, currency, payment_handle, COALESCE(transaction_id, ''), COALESCE(reason, ''), cart, created_at, updated_at
		 FROM checkout_orders WHERE order_id = $1`,
		orderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at
		 FROM outbox_events
		 WHERE processed_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateId, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark event %d processed: %w", id, err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.OrderRecord, error) {
	var order domain.OrderRecord
	var cartJSON []byte
	err := row.Scan(
		&order.OrderID,
		&order.SessionID,
		&order.Status,
		&order.Amount,
		&order.Currency,
		&order.PaymentHandle,
		&order.TransactionID,
		&order.Reason,
		&cartJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if len(cartJSON) > 0 {
		if err := json.Unmarshal(cartJSON, &order.Cart); err != nil {
			return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
		}
	}
	return &order, nil
}

func lockOrder(ctx context.Context, tx *sql.Tx, orderID string) (*domain.OrderRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT order_id, session_id, status, amount, currency, payment_handle, COALESCE(transaction_id, ''), COALESCE(reason, ''), cart, created_at, updated_at
		 FROM checkout_orders WHERE order_id = $1 FOR UPDATE`,
		orderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return order, err
}

func insertEvent(ctx context.Context, tx *sql.Tx, eventType string, order *domain.OrderRecord) error {
	payload, err := json.Marshal(orderEvent{
		OrderID:       order.OrderID,
		SessionID:     order.SessionID,
		Status:        order.Status.String(),
		Amount:        order.Amount,
		Currency:      order.Currency,
		TransactionID: order.TransactionID,
		Reason:        order.Reason,
		Items:         order.Cart,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, NOW())`,
		order.OrderID, eventType, payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
