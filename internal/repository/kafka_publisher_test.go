package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceFlow/internal/domain/models"
	pkgkafka "PriceFlow/pkg/kafka"

	"github.com/shopspring/decimal"
)

type fakeProducer struct {
	published []pkgkafka.Message
	err       error
}

func (f *fakeProducer) Publish(_ context.Context, _ string, key []byte, value interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, pkgkafka.Message{Key: key, Value: value})
	return nil
}

func (f *fakeProducer) PublishBatch(_ context.Context, _ string, msgs []pkgkafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msgs...)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string) {}
func (nopMetrics) RecordError(string)               {}
func (nopMetrics) RecordAverage(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)    {}
func (nopMetrics) RecordSkipped(string)             {}

func validEvent() *models.PriceEvent {
	return &models.PriceEvent{
		Symbol:        "AAPL",
		Price:         decimal.NewFromFloat(187.23),
		Timestamp:     time.Now().UTC(),
		Source:        "alphavantage",
		RawResponseID: "raw-1",
	}
}

func TestPublishKeysBySymbol(t *testing.T) {
	fake := &fakeProducer{}
	pub := &EventPublisher{producer: fake, topic: "price-events", metrics: nopMetrics{}}

	if err := pub.Publish(context.Background(), validEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fake.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(fake.published))
	}
	if got := string(fake.published[0].Key); got != "AAPL" {
		t.Fatalf("message key = %q, want symbol", got)
	}
}

func TestPublishRejectsInvalidEventBeforeBrokerContact(t *testing.T) {
	fake := &fakeProducer{}
	pub := &EventPublisher{producer: fake, topic: "price-events", metrics: nopMetrics{}}

	tests := []struct {
		name   string
		mutate func(*models.PriceEvent)
	}{
		{"missing symbol", func(e *models.PriceEvent) { e.Symbol = "" }},
		{"zero price", func(e *models.PriceEvent) { e.Price = decimal.Zero }},
		{"negative price", func(e *models.PriceEvent) { e.Price = decimal.NewFromInt(-1) }},
		{"zero timestamp", func(e *models.PriceEvent) { e.Timestamp = time.Time{} }},
		{"missing source", func(e *models.PriceEvent) { e.Source = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEvent()
			tt.mutate(e)

			err := pub.Publish(context.Background(), e)
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if len(fake.published) != 0 {
				t.Fatal("invalid event reached the producer")
			}
		})
	}
}

func TestPublishWrapsDeliveryFailureWithEvent(t *testing.T) {
	fake := &fakeProducer{err: errors.New("broker unreachable")}
	pub := &EventPublisher{producer: fake, topic: "price-events", metrics: nopMetrics{}}

	e := validEvent()
	err := pub.Publish(context.Background(), e)

	var derr *models.DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("error = %v, want DeliveryError", err)
	}
	if derr.Event != e {
		t.Fatal("delivery error does not carry the original event")
	}
}

func TestPublishBatchStopsOnFirstInvalidEvent(t *testing.T) {
	fake := &fakeProducer{}
	pub := &EventPublisher{producer: fake, topic: "price-events", metrics: nopMetrics{}}

	bad := validEvent()
	bad.Price = decimal.Zero

	err := pub.PublishBatch(context.Background(), []*models.PriceEvent{validEvent(), bad})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(fake.published) != 0 {
		t.Fatal("batch with invalid event reached the producer")
	}
}
