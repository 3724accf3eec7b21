package events

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront/internal/saga"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Source is the part of the saga journal the poller drains.
type Source interface {
	UnprocessedEvents(ctx context.Context, limit int) ([]*saga.OutboxEvent, error)
	MarkEventProcessed(ctx context.Context, id int64) error
	StuckCheckouts(ctx context.Context, idleFor time.Duration) ([]*saga.Checkout, error)
	Complete(ctx context.Context, checkoutID, eventType string, payload []byte) error
}

type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

type OutboxPoller struct {
	// timeout is how long a checkout must sit idle before recovery completes it.
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	batch        int
	source       Source
	writer       Writer
	log          *zap.Logger
	now          func() time.Time
	origin       string
}

func NewOutboxPoller(source Source, writer Writer, log *zap.Logger) *OutboxPoller {
	return &OutboxPoller{
		timeout:      time.Second * 30,
		eventTick:    time.Second,
		recoveryTick: time.Second * 5,
		batch:        100,
		source:       source,
		writer:       writer,
		log:          log,
		now:          time.Now,
	}
}

// WithOrigin tags published messages so this instance's Relay can skip them.
func (p *OutboxPoller) WithOrigin(origin string) *OutboxPoller {
	p.origin = origin
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStuckCheckouts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents is a no-op without a writer; rows stay in the
// outbox until a broker is configured.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	if p.writer == nil {
		return
	}
	events, err := p.source.UnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.log.Error("failed to publish event", zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.source.MarkEventProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark event as processed", zap.Int64("event_id", event.ID), zap.Error(err))
		}
	}
}

// recoverStuckCheckouts completes checkouts whose lines were all deleted
// but whose completion never got recorded within timeout.
func (p *OutboxPoller) recoverStuckCheckouts(ctx context.Context) {
	checkouts, err := p.source.StuckCheckouts(ctx, p.timeout)
	if err != nil {
		p.log.Error("failed to get stuck checkouts", zap.Error(err))
		return
	}
	for _, c := range checkouts {
		p.log.Info("recovering stuck checkout", zap.String("checkout_id", c.ID))

		payload, err := NewCheckoutCompleted(c, p.now()).Marshal()
		if err != nil {
			p.log.Error("failed to build checkout payload", zap.String("checkout_id", c.ID), zap.Error(err))
			continue
		}

		err = p.source.Complete(ctx, c.ID, TypeCheckoutCompleted, payload)
		if errors.Is(err, saga.ErrAlreadyCompleted) {
			p.log.Info("checkout completed concurrently", zap.String("checkout_id", c.ID))
			continue
		}
		if err != nil {
			p.log.Error("failed to complete checkout", zap.String("checkout_id", c.ID), zap.Error(err))
			continue
		}
		p.log.Info("checkout recovered", zap.String("checkout_id", c.ID))
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *saga.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // checkout id keeps ordering per checkout
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.EventType)},
		},
	}
	if p.origin != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: headerOrigin, Value: []byte(p.origin)})
	}
	return p.writer.WriteMessages(ctx, msg)
}
