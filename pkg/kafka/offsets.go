package kafka

import (
	"sync"
)

// OffsetTracker records, per partition, the highest offset whose side
// effects are durably persisted and the highest offset acknowledged to
// the group coordinator. Processing is strictly in order within a
// partition, so the processed watermark is always contiguous.
//
// The commit invariant: an offset may only be committed after every
// event at or below it has been durably written. Committed may lag
// processed (safe reprocessing on crash) but never lead it.
type OffsetTracker struct {
	mu        sync.Mutex
	processed map[int]int64
	committed map[int]int64
}

// NewOffsetTracker creates an empty tracker for one generation.
func NewOffsetTracker() *OffsetTracker {
	return &OffsetTracker{
		processed: make(map[int]int64),
		committed: make(map[int]int64),
	}
}

// MarkProcessed advances the durable watermark for a partition.
// Out-of-order or repeated marks are ignored.
func (t *OffsetTracker) MarkProcessed(partition int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.processed[partition]; ok && offset <= cur {
		return
	}
	t.processed[partition] = offset
}

// MarkCommitted records a successful commit.
func (t *OffsetTracker) MarkCommitted(partition int, offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.committed[partition]; ok && offset <= cur {
		return
	}
	t.committed[partition] = offset
}

// Pending returns partitions whose processed watermark is ahead of the
// committed one, mapped to the offset that should be committed next
// (one past the last processed event, per the log's commit convention).
func (t *OffsetTracker) Pending() map[int]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]int64)
	for p, processed := range t.processed {
		committed, ok := t.committed[p]
		if !ok || processed > committed {
			out[p] = processed + 1
		}
	}
	return out
}

// PendingCount reports how many events on a partition are processed
// but not yet committed.
func (t *OffsetTracker) PendingCount(partition int) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	processed, ok := t.processed[partition]
	if !ok {
		return 0
	}
	committed, ok := t.committed[partition]
	if !ok {
		return processed + 1
	}
	return processed - committed
}

// Committed returns the committed watermark for a partition.
func (t *OffsetTracker) Committed(partition int) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.committed[partition]
	return v, ok
}
