package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PriceEvent is the wire representation of a single price update.
// Events are immutable once published and are keyed by Symbol so that
// all updates for one symbol land on the same partition.
type PriceEvent struct {
	Symbol        string          `json:"symbol" validate:"required"`
	Price         decimal.Decimal `json:"price"`
	Timestamp     time.Time       `json:"timestamp" validate:"required"`
	Source        string          `json:"source" validate:"required"`
	RawResponseID string          `json:"raw_response_id" validate:"required"`
}

// Validate checks the event before it may be published.
func (e *PriceEvent) Validate() error {
	if e == nil {
		return &ValidationError{Field: "event", Reason: "event is nil"}
	}
	if err := validate.Struct(e); err != nil {
		return validationErrorFrom(err)
	}
	if !e.Price.IsPositive() {
		return &ValidationError{Field: "price", Reason: "price must be greater than zero"}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "timestamp is required"}
	}
	return nil
}

// Marshal serializes the event to its JSON wire form.
func (e *PriceEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalPriceEvent decodes and validates an event payload.
func UnmarshalPriceEvent(b []byte) (*PriceEvent, error) {
	var e PriceEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, &ValidationError{Field: "payload", Reason: err.Error()}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// PricePoint is one persisted price sample. EventID carries the event
// identity used for duplicate detection under redelivery; Seq breaks
// ties between samples with identical timestamps.
type PricePoint struct {
	ID        string          `json:"id" gorm:"type:uuid;primaryKey"`
	Symbol    string          `json:"symbol" gorm:"uniqueIndex:uq_price_points_symbol_event,priority:1;index:idx_price_points_symbol_ts,priority:1;not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:numeric(20,8);not null"`
	Timestamp time.Time       `json:"timestamp" gorm:"index:idx_price_points_symbol_ts,priority:2;not null"`
	Provider  string          `json:"provider" gorm:"not null"`
	EventID   string          `json:"event_id" gorm:"uniqueIndex:uq_price_points_symbol_event,priority:2;not null"`
	Seq       int64           `json:"-" gorm:"autoIncrement"`
}

// TableName maps PricePoint to its table.
func (PricePoint) TableName() string { return "price_points" }

// MovingAverageRecord holds the rolling aggregate for one symbol.
// There is exactly one row per symbol; it is upserted on every
// in-window event and never deleted.
type MovingAverageRecord struct {
	Symbol      string          `json:"symbol" gorm:"primaryKey"`
	WindowSize  int             `json:"window_size" gorm:"not null"`
	Average     decimal.Decimal `json:"average" gorm:"type:numeric(20,8);not null"`
	SampleCount int             `json:"sample_count" gorm:"not null"`
	LastUpdated time.Time       `json:"last_updated" gorm:"not null"`
	LastEventID string          `json:"last_event_id" gorm:"not null"`
}

// TableName maps MovingAverageRecord to its table.
func (MovingAverageRecord) TableName() string { return "moving_averages" }

// RawMarketData is the unmodified provider payload, archived for
// traceability. PriceEvent.RawResponseID points back at one of these.
type RawMarketData struct {
	ID        string
	Symbol    string
	Provider  string
	Payload   []byte
	FetchedAt time.Time
}

// Quote is a normalized provider response before it becomes an event.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
	Provider  string
}
