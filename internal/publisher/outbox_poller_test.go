package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/goleak"

	r "github.com/fjod/go_cart/fixed-checkout/internal/repository"
)

type MockRepository struct {
	mu            sync.Mutex
	OutboxEvents  []*r.OutboxEvent
	GetErr        error
	ProcessedIDs  []int
	MarkErr       error
	Expired       []string
	ExpireErr     error
	ExpireCalls   int
	ExpireTimeout time.Duration
}

func (m *MockRepository) GetUnprocessedEvents(context.Context, int) ([]*r.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var pending []*r.OutboxEvent
	for _, e := range m.OutboxEvents {
		if !m.processed(e.ID) {
			pending = append(pending, e)
		}
	}
	return pending, nil
}

func (m *MockRepository) processed(id int) bool {
	for _, p := range m.ProcessedIDs {
		if p == id {
			return true
		}
	}
	return false
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) ExpireStaleOrders(_ context.Context, olderThan time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExpireCalls++
	m.ExpireTimeout = olderThan
	return m.Expired, m.ExpireErr
}

func (m *MockRepository) Processed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.ProcessedIDs...)
}

type MockWriter struct {
	mu       sync.Mutex
	messages []kafkaGo.Message
	failKey  string
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if w.failKey != "" && string(m.Key) == w.failKey {
			return errors.New("leader not available")
		}
		w.messages = append(w.messages, m)
	}
	return nil
}

func (w *MockWriter) Close() error {
	return nil
}

func event(id int, orderID, eventType string) *r.OutboxEvent {
	return &r.OutboxEvent{
		ID:          id,
		AggregateId: orderID,
		EventType:   eventType,
		Payload:     json.RawMessage(fmt.Sprintf(`{"order_id":%q}`, orderID)),
		CreatedAt:   time.Now(),
	}
}

func newTestPoller(repo Repository, w messageWriter) *OutboxPoller {
	return &OutboxPoller{
		paymentTimeout: 20 * time.Minute,
		eventTick:      10 * time.Millisecond,
		expiryTick:     10 * time.Millisecond,
		batchSize:      100,
		repo:           repo,
		writer:         w,
	}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{
		event(1, "order-1", r.EventOrderCompleted),
		event(2, "order-2", r.EventPaymentExpired),
	}}
	w := &MockWriter{}
	poller := newTestPoller(repo, w)

	poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int{1, 2}, repo.Processed())
	require.Len(t, w.messages, 2)
	assert.Equal(t, "order-1", string(w.messages[0].Key))
	require.Len(t, w.messages[0].Headers, 1)
	assert.Equal(t, "event_type", w.messages[0].Headers[0].Key)
	assert.Equal(t, r.EventOrderCompleted, string(w.messages[0].Headers[0].Value))
}

func TestProcessUnpublishedEvents_StopsAtFirstPublishFailure(t *testing.T) {
	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{
		event(1, "order-1", r.EventOrderCompleted),
		event(2, "order-2", r.EventOrderCompleted),
	}}
	w := &MockWriter{failKey: "order-1"}
	poller := newTestPoller(repo, w)

	poller.processUnpublishedEvents(context.Background())

	assert.Empty(t, repo.Processed())
	assert.Empty(t, w.messages)
}

func TestProcessUnpublishedEvents_RepositoryError(t *testing.T) {
	repo := &MockRepository{GetErr: errors.New("database connection error")}
	w := &MockWriter{}
	poller := newTestPoller(repo, w)

	poller.processUnpublishedEvents(context.Background())

	assert.Empty(t, w.messages)
}

func TestProcessUnpublishedEvents_MarkErrorContinues(t *testing.T) {
	repo := &MockRepository{
		OutboxEvents: []*r.OutboxEvent{event(1, "order-1", r.EventOrderCompleted), event(2, "order-2", r.EventOrderCompleted)},
		MarkErr:      errors.New("database deadlock"),
	}
	w := &MockWriter{}
	poller := newTestPoller(repo, w)

	poller.processUnpublishedEvents(context.Background())

	assert.Len(t, w.messages, 2)
	assert.Empty(t, repo.Processed())
}

func TestExpireStalePayments(t *testing.T) {
	repo := &MockRepository{Expired: []string{"order-1", "order-2"}}
	poller := newTestPoller(repo, &MockWriter{})

	poller.expireStalePayments(context.Background())

	assert.Equal(t, 1, repo.ExpireCalls)
	assert.Equal(t, 20*time.Minute, repo.ExpireTimeout)
}

func TestExpireStalePayments_Error(t *testing.T) {
	repo := &MockRepository{ExpireErr: errors.New("database connection error")}
	poller := newTestPoller(repo, &MockWriter{})

	// should log and return
	poller.expireStalePayments(context.Background())
	assert.Equal(t, 1, repo.ExpireCalls)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{event(1, "order-1", r.EventOrderCompleted)}}
	poller := newTestPoller(repo, &MockWriter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(repo.Processed()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func setupKafka(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, DefaultTopic)
	time.Sleep(5 * time.Second)

	repo := &MockRepository{OutboxEvents: []*r.OutboxEvent{event(1, "order-123", r.EventOrderCompleted)}}

	writer := &kafkaGo.Writer{
		Addr:         kafkaGo.TCP(brokerAddr),
		Topic:        DefaultTopic,
		Balancer:     &kafkaGo.Hash{},
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	defer writer.Close()

	poller := newTestPoller(repo, writer)
	poller.eventTick = time.Second
	poller.expiryTick = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    DefaultTopic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)

	assert.Equal(t, "order-123", string(msg.Key))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "order-123", payload["order_id"])

	require.Eventually(t, func() bool {
		return len(repo.Processed()) == 1
	}, 5*time.Second, 100*time.Millisecond)
}
