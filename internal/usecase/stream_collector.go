package usecase

import (
	"context"
	"time"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"
	mid "PriceFlow/internal/middleware"
)

// StreamCollector reads quotes from a push-based market stream and
// feeds them through the realtime pipeline into the event log.
type StreamCollector struct {
	stream  drepo.MarketStream
	proc    *QuoteProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewStreamCollector creates a collector over a market stream.
func NewStreamCollector(stream drepo.MarketStream, proc *QuoteProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *StreamCollector {
	return &StreamCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *StreamCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *StreamCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	quotes, errs := c.stream.Read(ctx)
	go c.consume(ctx, quotes, errs)
	return nil
}

func (c *StreamCollector) consume(ctx context.Context, quotes <-chan *models.Quote, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				// drained; the quote channel closing drives recovery
				errs = nil
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
			}
		case q, ok := <-quotes:
			if !ok {
				// the read loop exited, re-establish the stream and
				// resume reading so one hiccup doesn't kill the feed
				quotes, errs = c.reopen(ctx)
				if quotes == nil {
					return
				}
				continue
			}
			if q == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, q)
			} else {
				_ = c.proc.Process(ctx, q)
			}
		}
	}
}

// reopen reconnects until it succeeds or ctx ends, then starts a fresh
// read loop. Returns nil channels when ctx is done.
func (c *StreamCollector) reopen(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	for ctx.Err() == nil {
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("stream_reconnect")
			select {
			case <-ctx.Done():
				return nil, nil
			case <-time.After(time.Second):
			}
			continue
		}
		return c.stream.Read(ctx)
	}
	return nil, nil
}

// Shutdown stops the pipeline and closes the stream.
func (c *StreamCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
