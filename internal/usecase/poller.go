package usecase

import (
	"context"
	"errors"
	"time"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"
	"PriceFlow/internal/service/ratelimit"
	applogger "PriceFlow/pkg/logger"

	"github.com/google/uuid"
)

// Poller fetches quotes from a provider on a fixed interval and turns
// them into published price events. The raw provider payload is
// archived first so every event can be traced back to the response it
// came from.
type Poller struct {
	provider drepo.Provider
	archive  drepo.RawArchive
	pub      drepo.Publisher
	limiter  *ratelimit.Limiter
	metrics  drepo.Metrics
	log      *applogger.Logger

	symbols  []string
	interval time.Duration
	rate     float64 // provider requests per second
}

// NewPoller creates a poller for the given symbols.
func NewPoller(
	provider drepo.Provider,
	archive drepo.RawArchive,
	pub drepo.Publisher,
	metrics drepo.Metrics,
	log *applogger.Logger,
	symbols []string,
	interval time.Duration,
	requestsPerMinute int,
) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 5 // free-tier default
	}
	return &Poller{
		provider: provider,
		archive:  archive,
		pub:      pub,
		limiter:  ratelimit.New(),
		metrics:  metrics,
		log:      log,
		symbols:  symbols,
		interval: interval,
		rate:     float64(requestsPerMinute) / 60.0,
	}
}

// Run polls until ctx is canceled. The first cycle starts immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

// PollOnce fetches and publishes one quote per symbol.
func (p *Poller) PollOnce(ctx context.Context) {
	for _, symbol := range p.symbols {
		if ctx.Err() != nil {
			return
		}
		if !p.limiter.Allow(p.provider.Name(), float64(len(p.symbols)), p.rate) {
			p.metrics.RecordSkipped("rate_limited")
			p.log.Warn("provider rate limit reached, skipping symbol",
				applogger.String("provider", p.provider.Name()),
				applogger.String("symbol", symbol),
			)
			continue
		}
		if err := p.pollSymbol(ctx, symbol); err != nil {
			p.metrics.RecordError("poll")
		}
	}
}

func (p *Poller) pollSymbol(ctx context.Context, symbol string) error {
	quote, payload, err := p.provider.LatestQuote(ctx, symbol)
	if err != nil {
		p.log.Error("quote fetch failed",
			applogger.String("provider", p.provider.Name()),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return err
	}

	raw := &models.RawMarketData{
		ID:        uuid.NewString(),
		Symbol:    quote.Symbol,
		Provider:  quote.Provider,
		Payload:   payload,
		FetchedAt: time.Now().UTC(),
	}
	if err := p.archive.Store(ctx, raw); err != nil {
		// archival is best-effort; the event still ships
		p.metrics.RecordError("archive")
		p.log.Warn("raw payload archive failed",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
	}

	event := &models.PriceEvent{
		Symbol:        quote.Symbol,
		Price:         quote.Price,
		Timestamp:     quote.Timestamp,
		Source:        quote.Provider,
		RawResponseID: raw.ID,
	}

	if err := p.pub.Publish(ctx, event); err != nil {
		var derr *models.DeliveryError
		if errors.As(err, &derr) {
			// keep the full event in the log line so it can be
			// replayed by hand once the broker recovers
			b, _ := derr.Event.Marshal()
			p.log.Error("event delivery failed",
				applogger.String("symbol", symbol),
				applogger.String("event", string(b)),
				applogger.Error(derr.Err),
			)
		} else {
			p.log.Error("event rejected",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return err
	}
	return nil
}
