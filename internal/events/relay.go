package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	headerEventType = "event_type"
	headerOrigin    = "origin"
)

type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Publisher interface {
	Publish(CheckoutCompleted)
}

// NewKafkaReader reads the checkout topic. Every instance needs its own
// groupID to see all completions.
func NewKafkaReader(topic, groupID string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// Relay forwards checkout completions recorded by other storefront instances
// to the local bus, so event streams see checkouts made from any device.
type Relay struct {
	reader  Reader
	bus     Publisher
	origin  string
	log     *zap.Logger
	backoff time.Duration
}

func NewRelay(reader Reader, bus Publisher, origin string, log *zap.Logger) *Relay {
	return &Relay{
		reader:  reader,
		bus:     bus,
		origin:  origin,
		log:     log,
		backoff: time.Second,
	}
}

func (r *Relay) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.relayNext(ctx); err != nil && ctx.Err() == nil {
			r.log.Error("error reading checkout event", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(r.backoff):
			}
		}
	}
}

func (r *Relay) Close() {
	if err := r.reader.Close(); err != nil {
		r.log.Warn("error closing reader", zap.Error(err))
	}
}

// relayNext handles one message. Only read errors are returned; undecodable
// messages are logged and skipped.
func (r *Relay) relayNext(ctx context.Context) error {
	m, err := r.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	var eventType, origin string
	for _, h := range m.Headers {
		switch h.Key {
		case headerEventType:
			eventType = string(h.Value)
		case headerOrigin:
			origin = string(h.Value)
		}
	}
	if eventType != "" && eventType != TypeCheckoutCompleted {
		return nil
	}
	if r.origin != "" && origin == r.origin {
		// already published locally when the checkout finished
		return nil
	}

	var e CheckoutCompleted
	if err := json.Unmarshal(m.Value, &e); err != nil {
		r.log.Warn("error parsing checkout event", zap.ByteString("key", m.Key), zap.Error(err))
		return nil
	}
	if e.UserID == "" {
		r.log.Warn("checkout event without user_id", zap.String("checkout_id", e.CheckoutID))
		return nil
	}
	r.bus.Publish(e)
	return nil
}
