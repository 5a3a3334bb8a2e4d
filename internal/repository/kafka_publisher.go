package repository

import (
	"context"

	"PriceFlow/internal/domain/models"
	"PriceFlow/internal/domain/repository"
	pkgkafka "PriceFlow/pkg/kafka"
	"PriceFlow/pkg/queue"
)

// ReplayMessageType is the queue message type for events that could
// not be delivered to the broker.
const ReplayMessageType = "price_event_replay"

// producerAPI is the slice of the Kafka producer the publisher needs.
type producerAPI interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// EventPublisher implements Publisher on top of Kafka. Events are
// validated before any broker contact and keyed by symbol so that all
// updates for one symbol stay ordered on one partition.
type EventPublisher struct {
	producer producerAPI
	topic    string
	metrics  repository.Metrics
	replay   queue.Service
}

// PublisherOption configures EventPublisher.
type PublisherOption func(*EventPublisher)

// WithReplayQueue parks events that fail delivery on a queue so they
// are republished once the broker recovers.
func WithReplayQueue(q queue.Service) PublisherOption {
	return func(p *EventPublisher) {
		p.replay = q
	}
}

// NewEventPublisher creates a Kafka-backed event publisher.
func NewEventPublisher(producer *pkgkafka.Producer, topic string, metrics repository.Metrics, opts ...PublisherOption) repository.Publisher {
	p := &EventPublisher{producer: producer, topic: topic, metrics: metrics}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *EventPublisher) Publish(ctx context.Context, e *models.PriceEvent) error {
	if err := e.Validate(); err != nil {
		p.metrics.RecordError("publish_validation")
		return err
	}

	b, err := e.Marshal()
	if err != nil {
		return &models.DeliveryError{Event: e, Err: err}
	}

	if err := p.producer.Publish(ctx, p.topic, []byte(e.Symbol), b); err != nil {
		p.metrics.RecordError("publish_delivery")
		if p.replay != nil {
			if qerr := p.replay.Enqueue(ctx, ReplayMessageType, e); qerr == nil {
				p.metrics.RecordSkipped("replay_queued")
			}
		}
		// the caller gets the event back so it can be logged or retried
		return &models.DeliveryError{Event: e, Err: err}
	}

	p.metrics.RecordMessageSent("kafka", e.Symbol)
	return nil
}

func (p *EventPublisher) PublishBatch(ctx context.Context, events []*models.PriceEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]pkgkafka.Message, 0, len(events))
	for _, e := range events {
		if err := e.Validate(); err != nil {
			p.metrics.RecordError("publish_validation")
			return err
		}
		b, err := e.Marshal()
		if err != nil {
			return &models.DeliveryError{Event: e, Err: err}
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(e.Symbol), Value: b})
	}

	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		p.metrics.RecordError("publish_delivery")
		return &models.DeliveryError{Event: events[0], Err: err}
	}

	for _, e := range events {
		p.metrics.RecordMessageSent("kafka", e.Symbol)
	}
	return nil
}

func (p *EventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
