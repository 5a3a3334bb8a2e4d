package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes messages from a specific topic.
//
// Returning nil acknowledges the event. Returning a *PermanentError
// marks it as unprocessable: the member records the skip and moves
// past it so a poison message cannot stall the partition. Any other
// error is treated as transient and retried with backoff; once retries
// are exhausted the partition is surfaced as fatal, which ends the
// generation and hands the partition to a healthy member.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, data []byte) error
}

// PermanentError marks an event that can never succeed (malformed
// payload). The member skips it instead of retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// CommitError reports an offset commit that failed after every retry.
// The offsets it carries stay uncommitted, so those events are
// replayed when the partition is next consumed.
type CommitError struct {
	Topic   string
	Offsets map[int]int64
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %d offsets on %s: %v", len(e.Offsets), e.Topic, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// Member is one consumer-group member. It joins the group, receives a
// disjoint set of partitions each generation, and pulls batches in
// strict per-partition order. Offsets are committed only after the
// handler reports durable processing (write-then-commit), so a crash
// between the two steps replays already-applied events rather than
// losing unprocessed ones.
type Member struct {
	cfg     *MemberConfig
	handler MessageHandler
	state   *stateMachine
	group   *kafka.ConsumerGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewMember creates a consumer-group member for the handler's topic.
func NewMember(handler MessageHandler, opts ...MemberOption) (*Member, error) {
	cfg := &MemberConfig{
		GroupID:           "default",
		RetryMax:          3,
		BackoffMin:        50 * time.Millisecond,
		BackoffMax:        2 * time.Second,
		MinBytes:          1e3,  // 1KB
		MaxBytes:          10e6, // 10MB
		MaxWait:           500 * time.Millisecond,
		CommitBatch:       100,
		CommitInterval:    time.Second,
		CommitRetryMax:    3,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		RebalanceTimeout:  30 * time.Second,
		StartEarliest:     true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	initMemberMetricsOnce()

	return &Member{
		cfg:     cfg,
		handler: handler,
		state:   newStateMachine(),
		stopped: make(chan struct{}),
	}, nil
}

// State returns the member's current lifecycle state.
func (m *Member) State() MemberState { return m.state.Current() }

// Run joins the group and blocks, consuming generation after
// generation, until ctx is canceled or Stop is called. On shutdown it
// finishes in-flight events, commits outstanding offsets and releases
// partition ownership before returning.
func (m *Member) Run(ctx context.Context) error {
	topic := m.handler.Topic()

	startOffset := kafka.LastOffset
	if m.cfg.StartEarliest {
		startOffset = kafka.FirstOffset
	}
	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:                m.cfg.GroupID,
		Brokers:           m.cfg.Brokers,
		Topics:            []string{topic},
		StartOffset:       startOffset,
		SessionTimeout:    m.cfg.SessionTimeout,
		HeartbeatInterval: m.cfg.HeartbeatInterval,
		RebalanceTimeout:  m.cfg.RebalanceTimeout,
	})
	if err != nil {
		return fmt.Errorf("join group %s: %w", m.cfg.GroupID, err)
	}
	m.group = group

	go func() {
		select {
		case <-ctx.Done():
		case <-m.stopped:
		}
		_ = m.state.Transition(StateLeaving)
		_ = group.Close()
	}()

	first := true
	for {
		if !first {
			// previous generation ended: partitions are being
			// redistributed before the next assignment arrives
			_ = m.state.Transition(StateRebalancing)
		}
		gen, err := group.Next(ctx)
		if err != nil {
			if errors.Is(err, kafka.ErrGroupClosed) || errors.Is(err, context.Canceled) {
				_ = m.state.Transition(StateLeaving)
				_ = m.state.Transition(StateStopped)
				log.Printf("kafka member: left group %s", m.cfg.GroupID)
				return nil
			}
			_ = m.state.Transition(StateLeaving)
			_ = m.state.Transition(StateStopped)
			return fmt.Errorf("next generation: %w", err)
		}
		first = false
		_ = m.state.Transition(StateAssigned)

		assignments := gen.Assignments[topic]
		tracker := NewOffsetTracker()
		log.Printf("kafka member: generation %d assigned %d partitions", gen.ID, len(assignments))
		memberAssignedPartitions.WithLabelValues(topic, m.cfg.GroupID).Set(float64(len(assignments)))

		for _, assignment := range assignments {
			partition, offset := assignment.ID, assignment.Offset
			gen.Start(func(genCtx context.Context) {
				m.consumePartition(genCtx, gen, tracker, topic, partition, offset)
			})
		}
		_ = m.state.Transition(StatePolling)
	}
}

// Stop asks the member to leave the group cleanly.
func (m *Member) Stop() {
	m.stopOnce.Do(func() { close(m.stopped) })
}

// consumePartition pulls one partition in strict log order. It owns
// the partition exclusively for the lifetime of the generation.
func (m *Member) consumePartition(ctx context.Context, gen *kafka.Generation, tracker *OffsetTracker, topic string, partition int, offset int64) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   m.cfg.Brokers,
		Topic:     topic,
		Partition: partition,
		MinBytes:  m.cfg.MinBytes,
		MaxBytes:  m.cfg.MaxBytes,
		MaxWait:   m.cfg.MaxWait,
	})
	defer reader.Close()

	if err := reader.SetOffset(offset); err != nil {
		log.Printf("kafka member: partition %d set offset %d: %v", partition, offset, err)
		return
	}

	lastFlush := time.Now()
	defer func() {
		// commit outstanding offsets before the partition is
		// relinquished; failure here only widens the replay window
		if err := m.flushOffsets(gen, tracker, topic); err != nil {
			log.Printf("kafka member: final commit partition %d: %v", partition, err)
		}
	}()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, kafka.ErrGenerationEnded) {
				return
			}
			log.Printf("kafka member: read partition %d: %v", partition, err)
			return
		}

		err = m.handleWithRetry(ctx, msg.Value)
		var perm *PermanentError
		switch {
		case err == nil:
		case errors.As(err, &perm):
			log.Printf("kafka member: skipping event partition=%d offset=%d: %v", partition, msg.Offset, perm.Err)
			memberSkippedTotal.WithLabelValues(topic).Inc()
		default:
			// transient failure survived all retries: fatal for this
			// partition, end the generation so the group reassigns it
			log.Printf("kafka member: partition %d fatal at offset %d: %v", partition, msg.Offset, err)
			memberFatalTotal.WithLabelValues(topic).Inc()
			return
		}

		tracker.MarkProcessed(partition, msg.Offset)

		if tracker.PendingCount(partition) >= m.cfg.CommitBatch || time.Since(lastFlush) >= m.cfg.CommitInterval {
			if err := m.flushOffsets(gen, tracker, topic); err != nil {
				log.Printf("kafka member: commit partition %d: %v", partition, err)
			} else {
				lastFlush = time.Now()
			}
		}
	}
}

// handleWithRetry runs the handler, retrying transient errors with
// jittered exponential backoff up to the configured bound.
func (m *Member) handleWithRetry(ctx context.Context, data []byte) error {
	var err error
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err = m.handler.Handle(ctx, data)
		memberHandleLatency.WithLabelValues(m.handler.Topic()).Observe(time.Since(start).Seconds())

		var perm *PermanentError
		if err == nil || errors.As(err, &perm) || attempt > m.cfg.RetryMax {
			return err
		}

		sleep := backoffWithJitter(m.cfg.BackoffMin, m.cfg.BackoffMax, attempt)
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return err
		}
	}
}

// flushOffsets commits every pending offset in one round-trip. The
// commit only covers offsets whose writes are already durable.
func (m *Member) flushOffsets(gen *kafka.Generation, tracker *OffsetTracker, topic string) error {
	pending := tracker.Pending()
	if len(pending) == 0 {
		return nil
	}

	var err error
	for attempt := 1; attempt <= m.cfg.CommitRetryMax; attempt++ {
		err = gen.CommitOffsets(map[string]map[int]int64{topic: pending})
		if err == nil {
			for p, next := range pending {
				tracker.MarkCommitted(p, next-1)
			}
			memberCommitsTotal.WithLabelValues(topic, "ok").Inc()
			return nil
		}
		memberCommitsTotal.WithLabelValues(topic, "error").Inc()
		time.Sleep(backoffWithJitter(m.cfg.BackoffMin, m.cfg.BackoffMax, attempt))
	}
	return &CommitError{Topic: topic, Offsets: pending, Err: err}
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max {
		exp = max
	}
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp - jitter
}

var (
	memberAssignedPartitions *prometheus.GaugeVec
	memberSkippedTotal       *prometheus.CounterVec
	memberFatalTotal         *prometheus.CounterVec
	memberCommitsTotal       *prometheus.CounterVec
	memberHandleLatency      *prometheus.HistogramVec
	memberOnce               = make(chan struct{}, 1)
)

func initMemberMetricsOnce() {
	select {
	case memberOnce <- struct{}{}:
		memberAssignedPartitions = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "priceflow_kafka_member_assigned_partitions", Help: "Partitions owned in the current generation"},
			[]string{"topic", "group"},
		)
		memberSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "priceflow_kafka_member_skipped_total", Help: "Events skipped as unprocessable"},
			[]string{"topic"},
		)
		memberFatalTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "priceflow_kafka_member_partition_fatal_total", Help: "Partitions surfaced as fatal after exhausted retries"},
			[]string{"topic"},
		)
		memberCommitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "priceflow_kafka_member_commits_total", Help: "Offset commit attempts"},
			[]string{"topic", "result"},
		)
		memberHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "priceflow_kafka_member_handle_seconds", Help: "Handling time per event"},
			[]string{"topic"},
		)
	default:
		// already initialized
	}
}
