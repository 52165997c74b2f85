package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/service"
	"github.com/fjod/go_cart/fixed-checkout/internal/session"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

const (
	DefaultTopic   = "payment-outcomes"
	DefaultGroupID = "fixed-checkout"
)

// PaymentOutcomeEvent is what the payment provider publishes per order.
type PaymentOutcomeEvent struct {
	SessionID     string `json:"sessionId"`
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason,omitempty"`
}

// OutcomeRecorder applies a payment outcome to its checkout session.
type OutcomeRecorder interface {
	RecordPaymentOutcome(ctx context.Context, outcome domain.PaymentOutcome) (*domain.FlowState, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	recorder OutcomeRecorder
	reader   messageReader
}

func NewConsumer(recorder OutcomeRecorder, topic, groupID string, brokers ...string) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	if groupID == "" {
		groupID = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{recorder: recorder, reader: reader}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		slog.Error("error closing kafka reader", logger.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		slog.ErrorContext(ctx, "error reading payment outcome", logger.Error(err))
		return
	}

	var event PaymentOutcomeEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		slog.ErrorContext(ctx, "error parsing payment outcome",
			slog.Int64("offset", m.Offset),
			logger.Error(err))
		return
	}
	if event.SessionID == "" || event.OrderID == "" {
		slog.WarnContext(ctx, "payment outcome without session or order, skipping",
			slog.Int64("offset", m.Offset))
		return
	}

	outcome := domain.PaymentOutcome{
		SessionID:     event.SessionID,
		OrderID:       event.OrderID,
		Status:        domain.PaymentStatus(strings.ToUpper(event.Status)),
		TransactionID: event.TransactionID,
		Reason:        event.Reason,
	}

	state, err := c.recorder.RecordPaymentOutcome(ctx, outcome)
	var stepErr *service.StepError
	switch {
	case err == nil:
		slog.InfoContext(ctx, "payment outcome applied",
			logger.SessionID(outcome.SessionID),
			logger.OrderID(outcome.OrderID),
			logger.Step(state.Step))
	case errors.Is(err, session.ErrSessionNotFound):
		slog.WarnContext(ctx, "payment outcome for unknown session, skipping",
			logger.SessionID(outcome.SessionID),
			logger.OrderID(outcome.OrderID))
	case errors.As(err, &stepErr):
		// recorded in the session; the customer sees it and can retry
		slog.WarnContext(ctx, "payment outcome not applied",
			logger.SessionID(outcome.SessionID),
			logger.OrderID(outcome.OrderID),
			slog.String("code", stepErr.Code),
			logger.Error(err))
	default:
		slog.ErrorContext(ctx, "failed to apply payment outcome",
			logger.SessionID(outcome.SessionID),
			logger.OrderID(outcome.OrderID),
			logger.Error(err))
	}
}
