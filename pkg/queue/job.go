package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type from the queue.
type Job interface {
	// Type returns the message type this job handles.
	Type() string

	// Handle processes one message payload. A returned error schedules
	// a retry until the retry limit moves the message to the dead
	// letter list.
	Handle(ctx context.Context, payload json.RawMessage) error
}
