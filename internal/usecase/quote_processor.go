package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"

	"github.com/google/uuid"
)

// QuoteProcessor turns normalized quotes into published price events.
// Each quote's serialized form is archived under the id the event
// references, mirroring the poll path.
type QuoteProcessor struct {
	pub     drepo.Publisher
	archive drepo.RawArchive
	metrics drepo.Metrics
}

// NewQuoteProcessor creates a quote processor.
func NewQuoteProcessor(pub drepo.Publisher, archive drepo.RawArchive, metrics drepo.Metrics) *QuoteProcessor {
	return &QuoteProcessor{pub: pub, archive: archive, metrics: metrics}
}

// Process publishes one quote as a price event.
func (p *QuoteProcessor) Process(ctx context.Context, q *models.Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}

	start := time.Now()
	raw := &models.RawMarketData{
		ID:        uuid.NewString(),
		Symbol:    q.Symbol,
		Provider:  q.Provider,
		FetchedAt: time.Now().UTC(),
	}
	raw.Payload, _ = json.Marshal(q)
	if err := p.archive.Store(ctx, raw); err != nil {
		p.metrics.RecordError("archive")
	}

	event := &models.PriceEvent{
		Symbol:        q.Symbol,
		Price:         q.Price,
		Timestamp:     q.Timestamp,
		Source:        q.Provider,
		RawResponseID: raw.ID,
	}
	if err := p.pub.Publish(ctx, event); err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process quote: %w", err)
	}

	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// Close closes the underlying publisher.
func (p *QuoteProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
}
