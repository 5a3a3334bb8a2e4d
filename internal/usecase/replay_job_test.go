package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"PriceFlow/internal/domain/models"
	"PriceFlow/internal/repository"

	"github.com/shopspring/decimal"
)

func replayPayload(t *testing.T) json.RawMessage {
	t.Helper()
	e := &models.PriceEvent{
		Symbol:        "AAPL",
		Price:         decimal.NewFromFloat(187.23),
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Source:        "alphavantage",
		RawResponseID: "raw-1",
	}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return b
}

func TestReplayJobRepublishesEvent(t *testing.T) {
	pub := &memPublisher{}
	job := NewReplayJob(repository.ReplayMessageType, pub, nopMetrics{}, testLogger(t))

	if err := job.Handle(context.Background(), replayPayload(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Symbol != "AAPL" {
		t.Fatalf("events = %v, want the replayed AAPL event", pub.events)
	}
	if pub.events[0].RawResponseID != "raw-1" {
		t.Fatalf("raw response id = %q, want raw-1", pub.events[0].RawResponseID)
	}
}

func TestReplayJobReturnsDeliveryErrorForRetry(t *testing.T) {
	pub := &memPublisher{err: errors.New("broker still down")}
	job := NewReplayJob(repository.ReplayMessageType, pub, nopMetrics{}, testLogger(t))

	err := job.Handle(context.Background(), replayPayload(t))
	var derr *models.DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("error = %v, want DeliveryError so the queue reschedules", err)
	}
}

func TestReplayJobRejectsMalformedPayload(t *testing.T) {
	pub := &memPublisher{}
	job := NewReplayJob(repository.ReplayMessageType, pub, nopMetrics{}, testLogger(t))

	if err := job.Handle(context.Background(), json.RawMessage(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
	if len(pub.events) != 0 {
		t.Fatalf("published %d events from bad payload, want 0", len(pub.events))
	}
}
