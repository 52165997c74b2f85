package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	r "github.com/fjod/go_cart/fixed-checkout/internal/repository"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

const DefaultTopic = "fixed-checkout-events"

// Repository is the part of the journal the poller drains.
type Repository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*r.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
	ExpireStaleOrders(ctx context.Context, olderThan time.Duration) ([]string, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes journal events to Kafka and expires orders whose
// payment never arrived.
type OutboxPoller struct {
	paymentTimeout time.Duration
	eventTick      time.Duration
	expiryTick     time.Duration
	batchSize      int
	repo           Repository
	writer         messageWriter
}

func NewOutboxPoller(repo Repository, paymentTimeout time.Duration, topic string, brokers ...string) *OutboxPoller {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		paymentTimeout: paymentTimeout,
		eventTick:      time.Second,
		expiryTick:     time.Minute,
		batchSize:      100,
		repo:           repo,
		writer:         w,
	}
}

// Run blocks until ctx is cancelled.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	expiryTicker := time.NewTicker(p.expiryTick)
	defer eventTicker.Stop()
	defer expiryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-expiryTicker.C:
			p.expireStalePayments(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch outbox events", logger.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to publish outbox event",
				slog.Int("event_id", event.ID),
				slog.String("event_type", event.EventType),
				logger.Error(err))
			// keep per-order ordering: later events wait for this one
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "failed to mark outbox event as processed",
				slog.Int("event_id", event.ID),
				logger.Error(err))
			continue
		}
		slog.DebugContext(ctx, "outbox event published",
			slog.Int("event_id", event.ID),
			logger.OrderID(event.AggregateId),
			slog.String("event_type", event.EventType))
	}
}

// expireStalePayments moves orders that waited longer than the payment
// timeout to EXPIRED. Their events go out on the next event tick.
func (p *OutboxPoller) expireStalePayments(ctx context.Context) {
	expired, err := p.repo.ExpireStaleOrders(ctx, p.paymentTimeout)
	if err != nil {
		slog.ErrorContext(ctx, "failed to expire stale orders", logger.Error(err))
		return
	}
	for _, orderID := range expired {
		slog.WarnContext(ctx, "order payment expired", logger.OrderID(orderID))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // order id keeps one order on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
