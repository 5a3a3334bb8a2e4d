package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"PriceFlow/internal/domain/models"

	"github.com/shopspring/decimal"
)

type fakeStream struct {
	mu         sync.Mutex
	reconnects int
	reads      int
	quotes     chan *models.Quote
	errs       chan error
}

func (s *fakeStream) Connect(context.Context) error   { return nil }
func (s *fakeStream) Subscribe(context.Context) error { return nil }
func (s *fakeStream) Close() error                    { return nil }
func (s *fakeStream) IsConnected() bool               { return true }

func (s *fakeStream) Read(context.Context) (<-chan *models.Quote, <-chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	s.quotes = make(chan *models.Quote, 8)
	s.errs = make(chan error, 1)
	return s.quotes, s.errs
}

func (s *fakeStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *fakeStream) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func (s *fakeStream) emit(q *models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes <- q
}

// fail mimics the read loop dying on a broken connection: it surfaces
// the error and then closes both channels.
func (s *fakeStream) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs <- err
	close(s.errs)
	close(s.quotes)
}

type lockedPublisher struct {
	mu     sync.Mutex
	events []*models.PriceEvent
}

func (p *lockedPublisher) Publish(_ context.Context, e *models.PriceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *lockedPublisher) PublishBatch(ctx context.Context, events []*models.PriceEvent) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *lockedPublisher) Close() error { return nil }

func (p *lockedPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestStreamCollectorResumesAfterReadLoopExit(t *testing.T) {
	stream := &fakeStream{}
	pub := &lockedPublisher{}
	proc := NewQuoteProcessor(pub, &memArchive{}, nopMetrics{})
	col := NewStreamCollector(stream, proc, nopMetrics{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := col.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	now := time.Now().UTC()
	stream.emit(&models.Quote{Symbol: "AAPL", Price: decimal.NewFromFloat(187.23), Timestamp: now, Provider: "finnhub"})
	waitFor(t, "first quote published", func() bool { return pub.count() == 1 })

	stream.fail(errors.New("websocket: close 1006"))
	waitFor(t, "stream reconnect", func() bool { return stream.Reconnects() >= 1 && stream.Reads() >= 2 })

	// the collector is reading the fresh channels now
	stream.emit(&models.Quote{Symbol: "AAPL", Price: decimal.NewFromFloat(187.50), Timestamp: now.Add(time.Second), Provider: "finnhub"})
	waitFor(t, "quote published after reconnect", func() bool { return pub.count() == 2 })
}

func TestStreamCollectorStopsWhenContextEnds(t *testing.T) {
	stream := &fakeStream{}
	pub := &lockedPublisher{}
	proc := NewQuoteProcessor(pub, &memArchive{}, nopMetrics{})
	col := NewStreamCollector(stream, proc, nopMetrics{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := col.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	stream.fail(errors.New("websocket: close 1001"))

	// once ctx is done the collector must not reconnect
	time.Sleep(50 * time.Millisecond)
	if n := stream.Reconnects(); n != 0 {
		t.Fatalf("reconnected %d times after shutdown", n)
	}
}
