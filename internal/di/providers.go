package di

import (
	"context"
	"fmt"
	"time"

	"PriceFlow/internal/domain/repository"
	mid "PriceFlow/internal/middleware"
	internalrepo "PriceFlow/internal/repository"
	"PriceFlow/internal/service/alphavantage"
	"PriceFlow/internal/service/finnhub"
	"PriceFlow/internal/usecase"
	"PriceFlow/pkg/cache"
	pkgch "PriceFlow/pkg/clickhouse"
	"PriceFlow/pkg/config"
	pkgkafka "PriceFlow/pkg/kafka"
	applogger "PriceFlow/pkg/logger"
	"PriceFlow/pkg/metrics"
	pkgpg "PriceFlow/pkg/postgres"
	"PriceFlow/pkg/queue"
	"PriceFlow/pkg/server"

	goredis "github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := cfg.Logging.Level
	if level == "" {
		level = "info"
	}
	format := cfg.Logging.Format
	if format == "" {
		format = "json"
	}
	output := cfg.Logging.Output
	if output == "" {
		output = "stdout"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: output})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvidePostgresClient creates the PostgreSQL connection pool.
func ProvidePostgresClient(cfg *config.Config) (*pkgpg.Client, error) {
	client, err := pkgpg.New(pkgpg.Option{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		Database: cfg.Postgres.Database,
		SSLMode:  cfg.Postgres.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideStore creates the aggregate/job store and migrates its schema.
func ProvideStore(client *pkgpg.Client) (*internalrepo.PostgresStore, error) {
	store := internalrepo.NewPostgresStore(client)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ProvideAggregateStore exposes the store under its read/write interface.
func ProvideAggregateStore(store *internalrepo.PostgresStore) repository.AggregateStore {
	return store
}

// ProvideJobStore exposes the store under its job interface.
func ProvideJobStore(store *internalrepo.PostgresStore) repository.JobStore {
	return store
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the
// archive backend is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ArchiveSchema(cfg.ClickHouse.Database, "raw_market_data")); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideRawArchive creates the raw payload archive over ClickHouse,
// or a no-op archive when it is disabled.
func ProvideRawArchive(chClient *pkgch.Client, cfg *config.Config) repository.RawArchive {
	if chClient == nil {
		return internalrepo.NopArchive{}
	}
	return internalrepo.NewClickHouseArchive(chClient, cfg.ClickHouse.Database+".raw_market_data")
}

// ProvideCache creates the redis cache, or nil when disabled.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideReplayQueue creates the delivery replay queue, or nil when
// Redis is disabled. Events that fail broker delivery are parked here
// and republished by a registered replay job.
func ProvideReplayQueue(cfg *config.Config, log *applogger.Logger, producer *pkgkafka.Producer, m repository.Metrics) *queue.RedisQueue {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.NewRedisQueue(log, client, queue.Config{
		Workers:    1,
		RetryLimit: 5,
		RetryDelay: 30 * time.Second,
	})

	// the replay publisher must not park failures back on the queue,
	// the queue's own retry schedule drives further attempts
	replayPub := internalrepo.NewEventPublisher(producer, cfg.Kafka.Topic, m)
	q.Register(usecase.NewReplayJob(internalrepo.ReplayMessageType, replayPub, m, log))
	return q
}

// ProvidePublisher creates the validated event publisher.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config, m repository.Metrics, replay *queue.RedisQueue) repository.Publisher {
	opts := []internalrepo.PublisherOption{}
	if replay != nil {
		opts = append(opts, internalrepo.WithReplayQueue(replay))
	}
	return internalrepo.NewEventPublisher(producer, cfg.Kafka.Topic, m, opts...)
}

// ProvideAggregator creates the moving-average aggregator.
func ProvideAggregator(store repository.AggregateStore, m repository.Metrics, cfg *config.Config) *usecase.Aggregator {
	return usecase.NewAggregator(store, m, cfg.WindowSizeOrDefault(), cfg.ScaleOrDefault())
}

// ProvidePriceEventsHandler creates the consumer-side event handler.
func ProvidePriceEventsHandler(agg *usecase.Aggregator, c cache.Service, m repository.Metrics, cfg *config.Config, log *applogger.Logger) *usecase.PriceEventsHandler {
	return usecase.NewPriceEventsHandler(cfg.Kafka.Topic, agg, c, cfg.Aggregator.CacheTTL, m, log)
}

// ProvideMember creates the consumer-group member.
func ProvideMember(handler *usecase.PriceEventsHandler, cfg *config.Config) (*pkgkafka.Member, error) {
	cc := cfg.Kafka.Consumer
	opts := []pkgkafka.MemberOption{
		pkgkafka.WithMemberBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithMemberGroupID(cc.GroupID),
		pkgkafka.WithMemberStartEarliest(cc.StartEarliest),
		pkgkafka.WithMemberCommit(cc.CommitBatch, cc.CommitInterval),
	}
	if cc.RetryMax > 0 {
		opts = append(opts, pkgkafka.WithMemberRetry(cc.RetryMax, cc.BackoffMin, cc.BackoffMax))
	}
	if cc.MinBytes > 0 || cc.MaxBytes > 0 {
		opts = append(opts, pkgkafka.WithMemberFetch(cc.MinBytes, cc.MaxBytes, cc.MaxWait))
	}
	if cc.SessionTimeout > 0 {
		opts = append(opts, pkgkafka.WithMemberTimeouts(cc.SessionTimeout, cc.HeartbeatInterval, cc.RebalanceTimeout))
	}
	member, err := pkgkafka.NewMember(handler, opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka member: %w", err)
	}
	return member, nil
}

// ProvideProviders registers the pull-based quote providers.
func ProvideProviders(cfg *config.Config) map[string]repository.Provider {
	providers := make(map[string]repository.Provider)
	if cfg.AlphaVantage.APIKey != "" {
		providers["alphavantage"] = alphavantage.New(cfg.AlphaVantage.APIKey, cfg.AlphaVantage.BaseURL, cfg.AlphaVantage.Timeout)
	}
	return providers
}

// ProvideJobManager creates the polling job manager.
func ProvideJobManager(
	jobs repository.JobStore,
	archive repository.RawArchive,
	pub repository.Publisher,
	providers map[string]repository.Provider,
	locks cache.Service,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.JobManager {
	return usecase.NewJobManager(jobs, archive, pub, providers, locks, m, log)
}

// ProvidePoller creates the background poller for the configured
// symbols, or nil when none are configured.
func ProvidePoller(
	providers map[string]repository.Provider,
	archive repository.RawArchive,
	pub repository.Publisher,
	m repository.Metrics,
	log *applogger.Logger,
	cfg *config.Config,
) *usecase.Poller {
	provider, ok := providers["alphavantage"]
	if !ok || len(cfg.Poller.Symbols) == 0 {
		return nil
	}
	return usecase.NewPoller(provider, archive, pub, m, log,
		cfg.Poller.Symbols, cfg.Poller.Interval, cfg.AlphaVantage.RequestsPerMinute)
}

// ProvideStreamCollector creates the websocket collector, or nil when
// the finnhub feed is disabled.
func ProvideStreamCollector(pub repository.Publisher, archive repository.RawArchive, m repository.Metrics, cfg *config.Config) *usecase.StreamCollector {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	stream := finnhub.New(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		cfg.Finnhub.Symbols,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
	)
	proc := usecase.NewQuoteProcessor(pub, archive, m)
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewStreamCollector(stream, proc, m, pipe)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	member *pkgkafka.Member,
	poller *usecase.Poller,
	collector *usecase.StreamCollector,
	jobs *usecase.JobManager,
	store *internalrepo.PostgresStore,
	c cache.Service,
	pub repository.Publisher,
	replay *queue.RedisQueue,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, log, member, poller, collector, jobs, store, c, pub, replay, chClient)
}
