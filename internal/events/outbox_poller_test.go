package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/saga"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

type MockSource struct {
	Events            []*saga.OutboxEvent
	EventsErr         error
	ProcessedIDs      []int64
	Stuck             []*saga.Checkout
	StuckErr          error
	CompleteErr       error
	CompletedIDs      []string
	CompletedPayloads [][]byte
	CompleteCallCount int
	IdleFor           time.Duration
}

func (m *MockSource) UnprocessedEvents(context.Context, int) ([]*saga.OutboxEvent, error) {
	if m.EventsErr != nil {
		return nil, m.EventsErr
	}
	ev := m.Events
	m.Events = nil // return each batch once
	return ev, nil
}

func (m *MockSource) MarkEventProcessed(_ context.Context, id int64) error {
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockSource) StuckCheckouts(_ context.Context, idleFor time.Duration) ([]*saga.Checkout, error) {
	m.IdleFor = idleFor
	return m.Stuck, m.StuckErr
}

func (m *MockSource) Complete(_ context.Context, checkoutID, _ string, payload []byte) error {
	m.CompleteCallCount++
	if m.CompleteErr != nil {
		return m.CompleteErr
	}
	m.CompletedIDs = append(m.CompletedIDs, checkoutID)
	m.CompletedPayloads = append(m.CompletedPayloads, payload)
	return nil
}

type MockWriter struct {
	Messages []kafkaGo.Message
	Err      error
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	if w.Err != nil {
		return w.Err
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

func (w *MockWriter) Close() error { return nil }

func TestProcessUnpublishedEvents(t *testing.T) {
	source := &MockSource{
		Events: []*saga.OutboxEvent{
			{ID: 1, AggregateID: "chk-1", EventType: TypeCheckoutCompleted, Payload: []byte(`{"checkout_id":"chk-1"}`)},
			{ID: 2, AggregateID: "chk-2", EventType: TypeCheckoutCompleted, Payload: []byte(`{"checkout_id":"chk-2"}`)},
		},
	}
	writer := &MockWriter{}

	NewOutboxPoller(source, writer, zap.NewNop()).processUnpublishedEvents(context.Background())

	require.Len(t, writer.Messages, 2)
	assert.Equal(t, "chk-1", string(writer.Messages[0].Key))
	assert.Equal(t, "event_type", writer.Messages[0].Headers[0].Key)
	assert.Equal(t, TypeCheckoutCompleted, string(writer.Messages[0].Headers[0].Value))
	assert.Equal(t, []int64{1, 2}, source.ProcessedIDs)
}

func TestProcessUnpublishedEvents_WriteFailureLeavesEventUnprocessed(t *testing.T) {
	source := &MockSource{
		Events: []*saga.OutboxEvent{{ID: 1, AggregateID: "chk-1", Payload: []byte(`{}`)}},
	}
	writer := &MockWriter{Err: errors.New("broker down")}

	NewOutboxPoller(source, writer, zap.NewNop()).processUnpublishedEvents(context.Background())

	assert.Empty(t, source.ProcessedIDs)
}

func TestProcessUnpublishedEvents_WithoutWriterKeepsOutbox(t *testing.T) {
	source := &MockSource{Events: []*saga.OutboxEvent{{ID: 1, AggregateID: "chk-1"}}}
	poller := NewOutboxPoller(source, nil, zap.NewNop())

	poller.processUnpublishedEvents(context.Background())

	assert.Empty(t, source.ProcessedIDs)
	assert.Len(t, source.Events, 1)
}

func TestProcessUnpublishedEvents_SourceError(t *testing.T) {
	source := &MockSource{EventsErr: errors.New("database locked")}
	writer := &MockWriter{}

	NewOutboxPoller(source, writer, zap.NewNop()).processUnpublishedEvents(context.Background())

	assert.Empty(t, writer.Messages)
}

func TestRecoverStuckCheckouts(t *testing.T) {
	source := &MockSource{
		Stuck: []*saga.Checkout{{
			ID:      "chk-1",
			UserID:  "42",
			OrderID: domain.ID("900"),
			Region:  domain.Region(3),
			Lines:   []saga.Line{{ItemID: 1, ProductID: 10, Quantity: 2}},
		}},
	}
	poller := NewOutboxPoller(source, &MockWriter{}, zap.NewNop())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	poller.now = func() time.Time { return fixed }

	poller.recoverStuckCheckouts(context.Background())

	assert.Equal(t, 30*time.Second, source.IdleFor)
	require.Equal(t, []string{"chk-1"}, source.CompletedIDs)
	var payload CheckoutCompleted
	require.NoError(t, json.Unmarshal(source.CompletedPayloads[0], &payload))
	assert.Equal(t, "42", payload.UserID)
	assert.Equal(t, domain.ID("900"), payload.OrderID)
	assert.Equal(t, []domain.OrderLine{{ProductID: 10, Quantity: 2}}, payload.Items)
	assert.True(t, fixed.Equal(payload.CompletedAt))
}

func TestRecoverStuckCheckouts_Errors(t *testing.T) {
	source := &MockSource{StuckErr: errors.New("database connection error")}
	NewOutboxPoller(source, &MockWriter{}, zap.NewNop()).recoverStuckCheckouts(context.Background())
	assert.Equal(t, 0, source.CompleteCallCount)

	// one failing checkout does not stop the others
	source = &MockSource{
		Stuck:       []*saga.Checkout{{ID: "a"}, {ID: "b"}},
		CompleteErr: errors.New("database deadlock"),
	}
	NewOutboxPoller(source, &MockWriter{}, zap.NewNop()).recoverStuckCheckouts(context.Background())
	assert.Equal(t, 2, source.CompleteCallCount)
}

func TestRecoverStuckCheckouts_AlreadyCompletedIsSkipped(t *testing.T) {
	source := &MockSource{
		Stuck:       []*saga.Checkout{{ID: "chk-1"}},
		CompleteErr: fmt.Errorf("checkout chk-1: %w", saga.ErrAlreadyCompleted),
	}
	NewOutboxPoller(source, &MockWriter{}, zap.NewNop()).recoverStuckCheckouts(context.Background())
	assert.Equal(t, 1, source.CompleteCallCount)
	assert.Empty(t, source.CompletedIDs)
}

func TestOutboxPoller_DrainsJournal(t *testing.T) {
	j, err := saga.Open(filepath.Join(t.TempDir(), "saga.db"))
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	c := &saga.Checkout{ID: "chk-1", UserID: "42", CartID: 7, Region: 1, OrderID: "900",
		Remaining: []saga.Line{{ItemID: 1, ProductID: 10, Quantity: 1}}}
	require.NoError(t, j.RecordOrder(ctx, c))
	require.NoError(t, j.MarkDeleted(ctx, "chk-1", 1))

	writer := &MockWriter{}
	poller := NewOutboxPoller(j, writer, zap.NewNop())

	poller.recoverStuckCheckouts(ctx)
	events, err := j.UnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events, "recently touched checkouts are left to the running saga")

	poller.timeout = 0
	poller.recoverStuckCheckouts(ctx)
	poller.processUnpublishedEvents(ctx)

	require.Len(t, writer.Messages, 1)
	assert.Equal(t, "chk-1", string(writer.Messages[0].Key))

	events, err = j.UnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func setupKafka(t *testing.T) (string, func()) {
	if testing.Short() {
		t.Skip("skipping Kafka container test in short mode")
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

	createTopic(t, brokerAddr, "checkout-outbox")
	time.Sleep(5 * time.Second)

	source := &MockSource{
		Events: []*saga.OutboxEvent{{
			ID:          1,
			AggregateID: "chk-123",
			EventType:   TypeCheckoutCompleted,
			Payload:     []byte(`{"checkout_id":"chk-123","user_id":"42"}`),
		}},
	}

	writer := NewKafkaWriter("checkout-outbox", brokerAddr)
	writer.WriteTimeout = 10 * time.Second
	defer writer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	go NewOutboxPoller(source, writer, zap.NewNop()).Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    "checkout-outbox",
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "chk-123", string(msg.Key))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "42", payload["user_id"])
}
