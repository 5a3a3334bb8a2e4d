package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"PriceFlow/internal/domain/models"
	applogger "PriceFlow/pkg/logger"

	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	quotes map[string]*models.Quote
	err    error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) LatestQuote(_ context.Context, symbol string) (*models.Quote, []byte, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, nil, errors.New("unknown symbol")
	}
	return q, []byte(`{"raw":"payload"}`), nil
}

type memArchive struct {
	stored []*models.RawMarketData
	err    error
}

func (a *memArchive) Store(_ context.Context, raw *models.RawMarketData) error {
	if a.err != nil {
		return a.err
	}
	a.stored = append(a.stored, raw)
	return nil
}

func (a *memArchive) Close() error { return nil }

type memPublisher struct {
	events []*models.PriceEvent
	err    error
}

func (p *memPublisher) Publish(_ context.Context, e *models.PriceEvent) error {
	if p.err != nil {
		return &models.DeliveryError{Event: e, Err: p.err}
	}
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) PublishBatch(ctx context.Context, events []*models.PriceEvent) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *memPublisher) Close() error { return nil }

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestPollOncePublishesEventPerSymbol(t *testing.T) {
	now := time.Now().UTC()
	provider := &fakeProvider{quotes: map[string]*models.Quote{
		"AAPL": {Symbol: "AAPL", Price: decimal.NewFromFloat(187.23), Timestamp: now, Provider: "fake"},
		"MSFT": {Symbol: "MSFT", Price: decimal.NewFromFloat(330.10), Timestamp: now, Provider: "fake"},
	}}
	archive := &memArchive{}
	pub := &memPublisher{}

	p := NewPoller(provider, archive, pub, nopMetrics{}, testLogger(t), []string{"AAPL", "MSFT"}, time.Minute, 60)
	p.PollOnce(context.Background())

	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	if len(archive.stored) != 2 {
		t.Fatalf("archived %d payloads, want 2", len(archive.stored))
	}
	for i, e := range pub.events {
		if e.RawResponseID != archive.stored[i].ID {
			t.Fatalf("event %d does not reference its archived payload", i)
		}
		if e.Source != "fake" {
			t.Fatalf("event source = %q, want provider name", e.Source)
		}
	}
}

func TestPollOnceContinuesPastFailedSymbol(t *testing.T) {
	now := time.Now().UTC()
	provider := &fakeProvider{quotes: map[string]*models.Quote{
		"MSFT": {Symbol: "MSFT", Price: decimal.NewFromFloat(330.10), Timestamp: now, Provider: "fake"},
	}}
	pub := &memPublisher{}

	p := NewPoller(provider, &memArchive{}, pub, nopMetrics{}, testLogger(t), []string{"UNKNOWN", "MSFT"}, time.Minute, 60)
	p.PollOnce(context.Background())

	if len(pub.events) != 1 || pub.events[0].Symbol != "MSFT" {
		t.Fatalf("events = %v, want only MSFT", pub.events)
	}
}

func TestPollOnceShipsEventWhenArchiveFails(t *testing.T) {
	now := time.Now().UTC()
	provider := &fakeProvider{quotes: map[string]*models.Quote{
		"AAPL": {Symbol: "AAPL", Price: decimal.NewFromFloat(187.23), Timestamp: now, Provider: "fake"},
	}}
	pub := &memPublisher{}

	p := NewPoller(provider, &memArchive{err: errors.New("clickhouse down")}, pub, nopMetrics{}, testLogger(t), []string{"AAPL"}, time.Minute, 60)
	p.PollOnce(context.Background())

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1 despite archive failure", len(pub.events))
	}
}

func TestPollOnceSurvivesDeliveryFailure(t *testing.T) {
	now := time.Now().UTC()
	provider := &fakeProvider{quotes: map[string]*models.Quote{
		"AAPL": {Symbol: "AAPL", Price: decimal.NewFromFloat(187.23), Timestamp: now, Provider: "fake"},
	}}
	pub := &memPublisher{err: errors.New("broker unreachable")}

	p := NewPoller(provider, &memArchive{}, pub, nopMetrics{}, testLogger(t), []string{"AAPL"}, time.Minute, 60)
	p.PollOnce(context.Background()) // must not panic or abort
}
