package kafka

import (
	"testing"
)

func TestOffsetTrackerPendingConvention(t *testing.T) {
	tr := NewOffsetTracker()

	tr.MarkProcessed(0, 0)
	tr.MarkProcessed(0, 1)
	tr.MarkProcessed(0, 2)

	pending := tr.Pending()
	if got, want := pending[0], int64(3); got != want {
		t.Fatalf("pending offset = %d, want %d (one past last processed)", got, want)
	}

	tr.MarkCommitted(0, 2)
	if pending = tr.Pending(); len(pending) != 0 {
		t.Fatalf("expected no pending offsets after commit, got %v", pending)
	}
}

func TestOffsetTrackerCommittedNeverLeadsProcessed(t *testing.T) {
	tr := NewOffsetTracker()

	tr.MarkProcessed(1, 9)
	tr.MarkCommitted(1, 9)

	// a replayed commit of an older offset must not move the watermark back
	tr.MarkCommitted(1, 4)
	if got, _ := tr.Committed(1); got != 9 {
		t.Fatalf("committed watermark regressed to %d", got)
	}

	// processing continues past the committed point
	tr.MarkProcessed(1, 10)
	tr.MarkProcessed(1, 11)
	if got := tr.PendingCount(1); got != 2 {
		t.Fatalf("pending count = %d, want 2", got)
	}
}

func TestOffsetTrackerIgnoresOutOfOrderMarks(t *testing.T) {
	tr := NewOffsetTracker()

	tr.MarkProcessed(2, 5)
	tr.MarkProcessed(2, 3)
	tr.MarkProcessed(2, 5)

	pending := tr.Pending()
	if got, want := pending[2], int64(6); got != want {
		t.Fatalf("pending offset = %d, want %d", got, want)
	}
}

func TestOffsetTrackerPendingCountBeforeFirstCommit(t *testing.T) {
	tr := NewOffsetTracker()

	if got := tr.PendingCount(0); got != 0 {
		t.Fatalf("pending count on empty tracker = %d, want 0", got)
	}

	// offsets are zero-based: processing offset 0 means one event is
	// durable but nothing is committed yet
	tr.MarkProcessed(0, 0)
	if got := tr.PendingCount(0); got != 1 {
		t.Fatalf("pending count = %d, want 1", got)
	}
}

func TestOffsetTrackerPartitionsAreIndependent(t *testing.T) {
	tr := NewOffsetTracker()

	tr.MarkProcessed(0, 7)
	tr.MarkProcessed(3, 2)
	tr.MarkCommitted(0, 7)

	pending := tr.Pending()
	if _, ok := pending[0]; ok {
		t.Fatal("partition 0 should be fully committed")
	}
	if got, want := pending[3], int64(3); got != want {
		t.Fatalf("partition 3 pending = %d, want %d", got, want)
	}
}
