package usecase

import (
	"context"
	"errors"
	"testing"

	"PriceFlow/pkg/cache"
	pkgkafka "PriceFlow/pkg/kafka"
)

func TestHandleMalformedPayloadIsPermanent(t *testing.T) {
	agg := NewAggregator(newMemStore(), nopMetrics{}, 5, 8)
	h := NewPriceEventsHandler("price-events", agg, nil, 0, nopMetrics{}, nil)

	payloads := [][]byte{
		[]byte("not json"),
		[]byte(`{}`),
		[]byte(`{"symbol":"AAPL","price":"-1","timestamp":"2026-03-01T12:00:00Z","source":"alphavantage","raw_response_id":"r1"}`),
		[]byte(`{"symbol":"","price":"10","timestamp":"2026-03-01T12:00:00Z","source":"alphavantage","raw_response_id":"r1"}`),
	}

	for _, p := range payloads {
		err := h.Handle(context.Background(), p)
		var perm *pkgkafka.PermanentError
		if !errors.As(err, &perm) {
			t.Fatalf("payload %q: error = %v, want PermanentError", p, err)
		}
	}
}

func TestHandleValidEventUpdatesAggregate(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 5, 8)
	h := NewPriceEventsHandler("price-events", agg, nil, 0, nopMetrics{}, nil)

	payload := []byte(`{"symbol":"AAPL","price":"187.23","timestamp":"2026-03-01T12:00:00Z","source":"alphavantage","raw_response_id":"raw-1"}`)
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}

	rec, err := store.MovingAverage(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("moving average: %v", err)
	}
	if rec.SampleCount != 1 || rec.LastEventID != "raw-1" {
		t.Fatalf("aggregate = %+v, want one sample from raw-1", rec)
	}
}

func TestHandleWritesAverageThroughCache(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 5, 8)
	mc := cache.NewMemoryCache()
	defer mc.Close()
	h := NewPriceEventsHandler("price-events", agg, mc, 0, nopMetrics{}, nil)

	payload := []byte(`{"symbol":"AAPL","price":"187.23","timestamp":"2026-03-01T12:00:00Z","source":"alphavantage","raw_response_id":"raw-1"}`)
	if err := h.Handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}

	ok, err := mc.Exists(context.Background(), "avg:AAPL")
	if err != nil || !ok {
		t.Fatalf("cached average missing (ok=%v err=%v)", ok, err)
	}
}

func TestHandleRedeliveredPayloadIsNoop(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 5, 8)
	h := NewPriceEventsHandler("price-events", agg, nil, 0, nopMetrics{}, nil)

	payload := []byte(`{"symbol":"AAPL","price":"187.23","timestamp":"2026-03-01T12:00:00Z","source":"alphavantage","raw_response_id":"raw-1"}`)
	for i := 0; i < 3; i++ {
		if err := h.Handle(context.Background(), payload); err != nil {
			t.Fatalf("handle attempt %d: %v", i, err)
		}
	}

	if len(store.points) != 1 {
		t.Fatalf("stored %d samples, want 1", len(store.points))
	}
}
