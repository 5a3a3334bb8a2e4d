package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ErrNotFound signals a missing record (no averages yet for a symbol).
var ErrNotFound = errors.New("record not found")

// ValidationError rejects a malformed event before it reaches the log.
// It is the caller's responsibility and is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func validationErrorFrom(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q", fe.Tag())}
	}
	return &ValidationError{Field: "event", Reason: err.Error()}
}

// DeliveryError is returned when publishing exhausted its retries.
// It carries the original event so the caller can persist it for
// manual replay instead of losing it.
type DeliveryError struct {
	Event *PriceEvent
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed for %s: %v", e.Event.Symbol, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ProcessingError wraps a failure while consuming one event.
type ProcessingError struct {
	EventID string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing event %s: %v", e.EventID, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
