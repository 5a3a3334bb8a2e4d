package kafka

import "time"

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration. Defaults favor
// durability: all-replica acks and bounded retries.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int
	Compression  string
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration
	Async        bool
}

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithCompression sets compression type.
func WithCompression(compression string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Compression = compression
	}
}

// WithRequiredAcks sets required acknowledgements (-1 = all in-sync replicas).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = acks
	}
}

// WithMaxAttempts sets max send attempts before the writer gives up.
func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) {
		c.MaxAttempts = n
	}
}

// WithBatchSize sets batch size.
func WithBatchSize(size int) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchSize = size
	}
}

// WithBatchTimeout sets the linger before a partial batch is flushed.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchTimeout = timeout
	}
}

// WithBatchBytes sets target aggregate batch bytes.
func WithBatchBytes(bytes int) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchBytes = bytes
	}
}

// WithTimeouts sets writer read/write timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithAsync toggles async writes (fire-and-forget).
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.Async = async
	}
}

// MemberOption configures a consumer-group Member.
type MemberOption func(*MemberConfig)

// MemberConfig holds consumer-group member configuration.
type MemberConfig struct {
	Brokers           []string
	GroupID           string
	RetryMax          int
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	CommitBatch       int64
	CommitInterval    time.Duration
	CommitRetryMax    int
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	RebalanceTimeout  time.Duration
	StartEarliest     bool
}

// WithMemberBrokers sets Kafka brokers.
func WithMemberBrokers(brokers []string) MemberOption {
	return func(c *MemberConfig) {
		c.Brokers = brokers
	}
}

// WithMemberGroupID sets the consumer group identity.
func WithMemberGroupID(groupID string) MemberOption {
	return func(c *MemberConfig) {
		c.GroupID = groupID
	}
}

// WithMemberRetry configures per-event retry attempts and backoff range.
func WithMemberRetry(max int, backoffMin, backoffMax time.Duration) MemberOption {
	return func(c *MemberConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithMemberFetch sets fetch min/max bytes and max wait per poll.
func WithMemberFetch(minBytes, maxBytes int, maxWait time.Duration) MemberOption {
	return func(c *MemberConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
		c.MaxWait = maxWait
	}
}

// WithMemberCommit sets offset commit batching: flush after batch
// processed events or after interval, whichever comes first.
func WithMemberCommit(batch int64, interval time.Duration) MemberOption {
	return func(c *MemberConfig) {
		if batch > 0 {
			c.CommitBatch = batch
		}
		if interval > 0 {
			c.CommitInterval = interval
		}
	}
}

// WithMemberTimeouts sets group protocol timeouts.
func WithMemberTimeouts(session, heartbeat, rebalance time.Duration) MemberOption {
	return func(c *MemberConfig) {
		c.SessionTimeout = session
		c.HeartbeatInterval = heartbeat
		c.RebalanceTimeout = rebalance
	}
}

// WithMemberStartEarliest starts from the earliest offset when the
// group has no committed position.
func WithMemberStartEarliest(earliest bool) MemberOption {
	return func(c *MemberConfig) {
		c.StartEarliest = earliest
	}
}
