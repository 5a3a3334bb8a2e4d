package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"
	"PriceFlow/pkg/cache"
	pkgkafka "PriceFlow/pkg/kafka"
	applogger "PriceFlow/pkg/logger"
)

// PriceEventsHandler consumes price events and folds them into the
// moving-average aggregate. Malformed payloads are surfaced as
// permanent so the member skips them; storage failures are transient
// and retried by the member.
type PriceEventsHandler struct {
	topic    string
	agg      *Aggregator
	cache    cache.Service
	cacheTTL time.Duration
	metrics  drepo.Metrics
	log      *applogger.Logger
}

func NewPriceEventsHandler(topic string, agg *Aggregator, c cache.Service, cacheTTL time.Duration, metrics drepo.Metrics, log *applogger.Logger) *PriceEventsHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &PriceEventsHandler{topic: topic, agg: agg, cache: c, cacheTTL: cacheTTL, metrics: metrics, log: log}
}

func (h *PriceEventsHandler) Topic() string { return h.topic }

func (h *PriceEventsHandler) Handle(ctx context.Context, b []byte) error {
	e, err := models.UnmarshalPriceEvent(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			// never going to parse, skip rather than stall the partition
			return pkgkafka.Permanent(err)
		}
		return err
	}

	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(e.Timestamp).Seconds())

	start := time.Now()
	rec, err := h.agg.Apply(ctx, e)
	h.metrics.RecordLatency("aggregate_apply_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_aggregate")
		return err
	}

	// write-through so reads see the fresh average without a DB hit;
	// best-effort, the store row is the source of truth
	if h.cache != nil {
		if cerr := h.cache.Set(ctx, averageCacheKey(e.Symbol), rec, h.cacheTTL); cerr != nil {
			h.log.Warn("average cache write failed",
				applogger.String("symbol", e.Symbol),
				applogger.Error(cerr),
			)
		}
	}
	return nil
}

func averageCacheKey(symbol string) string {
	return fmt.Sprintf("avg:%s", symbol)
}

var _ pkgkafka.MessageHandler = (*PriceEventsHandler)(nil)
