package repository

import (
	"context"

	"PriceFlow/internal/domain/models"
)

// Publisher sends validated price events to the durable log.
type Publisher interface {
	Publish(ctx context.Context, e *models.PriceEvent) error
	PublishBatch(ctx context.Context, events []*models.PriceEvent) error
	Close() error
}

// AggregateStore persists price samples and per-symbol moving averages.
// Implementations must be transactional per symbol: RecordPrice is an
// insert-if-absent keyed by (symbol, event id), and UpsertMovingAverage
// must be safe to apply repeatedly with the same inputs.
type AggregateStore interface {
	Init(ctx context.Context) error
	// RecordPrice stores a sample. Returns false when the event
	// identity has been seen before (redelivery).
	RecordPrice(ctx context.Context, p *models.PricePoint) (bool, error)
	// RecentPrices returns up to limit samples for symbol, newest
	// first, ties broken by insertion order.
	RecentPrices(ctx context.Context, symbol string, limit int) ([]*models.PricePoint, error)
	UpsertMovingAverage(ctx context.Context, rec *models.MovingAverageRecord) error
	MovingAverage(ctx context.Context, symbol string) (*models.MovingAverageRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// JobStore persists polling job configurations and their status.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.PollJob) error
	UpdateJobStatus(ctx context.Context, id string, status models.PollJobStatus) error
	Job(ctx context.Context, id string) (*models.PollJob, error)
}

// RawArchive keeps unmodified provider payloads for traceability.
type RawArchive interface {
	Store(ctx context.Context, raw *models.RawMarketData) error
	Close() error
}

// Provider fetches the latest quote for one symbol together with the
// raw payload it was parsed from.
type Provider interface {
	Name() string
	LatestQuote(ctx context.Context, symbol string) (*models.Quote, []byte, error)
}

// MarketStream is a push-based provider (websocket feed).
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Quote, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics records pipeline observability signals.
type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordAverage(symbol string, avg float64)
	RecordLatency(op string, seconds float64)
	RecordSkipped(reason string)
}
