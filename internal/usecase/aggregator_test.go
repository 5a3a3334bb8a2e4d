package usecase

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"PriceFlow/internal/domain/models"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory AggregateStore with the same duplicate and
// upsert semantics as the PostgreSQL implementation.
type memStore struct {
	points []*models.PricePoint
	seen   map[string]bool
	avgs   map[string]*models.MovingAverageRecord
	seq    int64
}

func newMemStore() *memStore {
	return &memStore{
		seen: make(map[string]bool),
		avgs: make(map[string]*models.MovingAverageRecord),
	}
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) RecordPrice(_ context.Context, p *models.PricePoint) (bool, error) {
	key := p.Symbol + "/" + p.EventID
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	s.seq++
	cp := *p
	cp.Seq = s.seq
	s.points = append(s.points, &cp)
	return true, nil
}

func (s *memStore) RecentPrices(_ context.Context, symbol string, limit int) ([]*models.PricePoint, error) {
	var matched []*models.PricePoint
	for _, p := range s.points {
		if p.Symbol == symbol {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].Seq > matched[j].Seq
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *memStore) UpsertMovingAverage(_ context.Context, rec *models.MovingAverageRecord) error {
	cp := *rec
	s.avgs[rec.Symbol] = &cp
	return nil
}

func (s *memStore) MovingAverage(_ context.Context, symbol string) (*models.MovingAverageRecord, error) {
	rec, ok := s.avgs[symbol]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec, nil
}

func (s *memStore) Health(context.Context) error { return nil }
func (s *memStore) Close() error                 { return nil }

func eventAt(symbol string, price float64, n int) *models.PriceEvent {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.PriceEvent{
		Symbol:        symbol,
		Price:         decimal.NewFromFloat(price),
		Timestamp:     base.Add(time.Duration(n) * time.Minute),
		Source:        "alphavantage",
		RawResponseID: fmt.Sprintf("ev-%s-%d", symbol, n),
	}
}

func TestAggregatorRollingWindow(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 2, 8)

	prices := []float64{100, 101, 99, 102, 98}
	want := []string{"100", "100.5", "100", "100.5", "100"}

	for i, price := range prices {
		rec, err := agg.Apply(context.Background(), eventAt("AAPL", price, i))
		if err != nil {
			t.Fatalf("apply event %d: %v", i, err)
		}
		if !rec.Average.Equal(decimal.RequireFromString(want[i])) {
			t.Fatalf("event %d: average = %s, want %s", i, rec.Average, want[i])
		}
	}

	rec, err := store.MovingAverage(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("moving average: %v", err)
	}
	if rec.SampleCount != 2 {
		t.Fatalf("sample count = %d, want window size", rec.SampleCount)
	}
}

func TestAggregatorOutOfOrderTimestamps(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 5, 8)

	// per-symbol timestamps are not required to be monotonic: a polled
	// event stamped later can be followed by a streamed event stamped
	// earlier, and the second one must still land in the aggregate
	if _, err := agg.Apply(context.Background(), eventAt("AAPL", 100, 2)); err != nil {
		t.Fatalf("apply newer-stamped event: %v", err)
	}
	if _, err := agg.Apply(context.Background(), eventAt("AAPL", 200, 1)); err != nil {
		t.Fatalf("apply older-stamped event: %v", err)
	}

	rec, err := store.MovingAverage(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("moving average: %v", err)
	}
	if rec.SampleCount != 2 {
		t.Fatalf("sample count = %d, want 2", rec.SampleCount)
	}
	if !rec.Average.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("average = %s, want 150 over both samples", rec.Average)
	}
}

func TestAggregatorFiveSampleWindowSlides(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 5, 8)

	prices := []float64{100, 101, 99, 102, 98, 105}
	want := []string{"100", "100.5", "100", "100.5", "100", "101"}

	for i, price := range prices {
		rec, err := agg.Apply(context.Background(), eventAt("AAPL", price, i))
		if err != nil {
			t.Fatalf("apply event %d: %v", i, err)
		}
		if !rec.Average.Equal(decimal.RequireFromString(want[i])) {
			t.Fatalf("event %d: average = %s, want %s", i, rec.Average, want[i])
		}
	}

	// the sixth event evicts the first sample: (101+99+102+98+105)/5
	rec, err := store.MovingAverage(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("moving average: %v", err)
	}
	if rec.SampleCount != 5 {
		t.Fatalf("sample count = %d, want window size 5", rec.SampleCount)
	}
	if !rec.Average.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("average = %s, want 101 without the evicted sample", rec.Average)
	}
}

func TestAggregatorPartialWindow(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 5, 8)

	rec, err := agg.Apply(context.Background(), eventAt("MSFT", 330, 0))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.SampleCount != 1 {
		t.Fatalf("sample count = %d, want 1", rec.SampleCount)
	}
	if !rec.Average.Equal(decimal.NewFromInt(330)) {
		t.Fatalf("average = %s, want 330", rec.Average)
	}

	rec, err = agg.Apply(context.Background(), eventAt("MSFT", 331, 1))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if rec.SampleCount != 2 {
		t.Fatalf("sample count = %d, want 2", rec.SampleCount)
	}
	if !rec.Average.Equal(decimal.RequireFromString("330.5")) {
		t.Fatalf("average = %s, want 330.5", rec.Average)
	}
}

func TestAggregatorRedeliveryIsIdempotent(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 5, 8)

	events := []*models.PriceEvent{
		eventAt("NVDA", 900, 0),
		eventAt("NVDA", 910, 1),
		eventAt("NVDA", 920, 2),
	}
	for _, e := range events {
		if _, err := agg.Apply(context.Background(), e); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	before, _ := store.MovingAverage(context.Background(), "NVDA")

	// redeliver the full sequence, as after an uncommitted crash
	for _, e := range events {
		if _, err := agg.Apply(context.Background(), e); err != nil {
			t.Fatalf("redeliver: %v", err)
		}
	}

	after, _ := store.MovingAverage(context.Background(), "NVDA")
	if !after.Average.Equal(before.Average) || after.SampleCount != before.SampleCount {
		t.Fatalf("redelivery changed aggregate: %s/%d -> %s/%d",
			before.Average, before.SampleCount, after.Average, after.SampleCount)
	}
	if len(store.points) != 3 {
		t.Fatalf("stored %d samples, want 3", len(store.points))
	}
}

func TestAggregatorAverageScale(t *testing.T) {
	store := newMemStore()
	agg := NewAggregator(store, nopMetrics{}, 3, 8)

	// 10+20+10 over 3 does not divide evenly; the quotient is rounded
	// to the configured scale instead of truncated arbitrarily
	for i, price := range []float64{10, 20, 10} {
		if _, err := agg.Apply(context.Background(), eventAt("TSLA", price, i)); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	rec, err := store.MovingAverage(context.Background(), "TSLA")
	if err != nil {
		t.Fatalf("moving average: %v", err)
	}
	if !rec.Average.Equal(decimal.RequireFromString("13.33333333")) {
		t.Fatalf("average = %s, want 13.33333333", rec.Average)
	}
	if rec.Average.Exponent() < -8 {
		t.Fatalf("average %s has more than 8 decimal places", rec.Average)
	}
}

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, string) {}
func (nopMetrics) RecordError(string)               {}
func (nopMetrics) RecordAverage(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)    {}
func (nopMetrics) RecordSkipped(string)             {}
