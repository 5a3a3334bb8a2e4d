package usecase

import (
	"context"
	"fmt"
	"time"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// Aggregator maintains a rolling moving average per symbol over the
// most recent samples. Apply is idempotent: a redelivered event never
// changes the stored aggregate, because the window is always recomputed
// from the persisted samples rather than accumulated incrementally.
type Aggregator struct {
	store      drepo.AggregateStore
	metrics    drepo.Metrics
	windowSize int
	scale      int32
}

// NewAggregator creates an aggregator with the given window size.
func NewAggregator(store drepo.AggregateStore, metrics drepo.Metrics, windowSize int, scale int32) *Aggregator {
	if windowSize <= 0 {
		windowSize = 5
	}
	if scale <= 0 {
		scale = 8
	}
	return &Aggregator{store: store, metrics: metrics, windowSize: windowSize, scale: scale}
}

// WindowSize returns the configured window length.
func (a *Aggregator) WindowSize() int { return a.windowSize }

// Apply folds one price event into the aggregate. The sample insert is
// keyed by (symbol, event id) so a duplicate is a no-op; the average is
// then recomputed from the stored window either way, which also repairs
// a partial earlier run that crashed between insert and upsert.
func (a *Aggregator) Apply(ctx context.Context, e *models.PriceEvent) (*models.MovingAverageRecord, error) {
	point := &models.PricePoint{
		Symbol:    e.Symbol,
		Price:     e.Price,
		Timestamp: e.Timestamp,
		Provider:  e.Source,
		EventID:   e.RawResponseID,
	}

	inserted, err := a.store.RecordPrice(ctx, point)
	if err != nil {
		return nil, &models.ProcessingError{EventID: point.EventID, Err: err}
	}
	if !inserted {
		a.metrics.RecordSkipped("duplicate")
	}

	rec, err := a.Recompute(ctx, e.Symbol, point.EventID, e.Timestamp)
	if err != nil {
		return nil, err
	}

	avg, _ := rec.Average.Float64()
	a.metrics.RecordAverage(e.Symbol, avg)
	return rec, nil
}

// Recompute rebuilds the aggregate row from the newest stored samples
// and upserts it.
func (a *Aggregator) Recompute(ctx context.Context, symbol, eventID string, eventTime time.Time) (*models.MovingAverageRecord, error) {
	window, err := a.store.RecentPrices(ctx, symbol, a.windowSize)
	if err != nil {
		return nil, &models.ProcessingError{EventID: eventID, Err: err}
	}
	if len(window) == 0 {
		return nil, &models.ProcessingError{EventID: eventID, Err: fmt.Errorf("no samples for %s", symbol)}
	}

	sum := decimal.Zero
	for _, p := range window {
		sum = sum.Add(p.Price)
	}
	avg := sum.DivRound(decimal.NewFromInt(int64(len(window))), a.scale)

	rec := &models.MovingAverageRecord{
		Symbol:      symbol,
		WindowSize:  a.windowSize,
		Average:     avg,
		SampleCount: len(window),
		LastUpdated: eventTime.UTC(),
		LastEventID: eventID,
	}
	if err := a.store.UpsertMovingAverage(ctx, rec); err != nil {
		return nil, &models.ProcessingError{EventID: eventID, Err: err}
	}
	return rec, nil
}
