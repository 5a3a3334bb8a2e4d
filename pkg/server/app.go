package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PriceFlow/internal/domain/repository"
	"PriceFlow/internal/handler/api"
	internalrepo "PriceFlow/internal/repository"
	"PriceFlow/internal/usecase"
	"PriceFlow/pkg/cache"
	pkgch "PriceFlow/pkg/clickhouse"
	"PriceFlow/pkg/config"
	xhttp "PriceFlow/pkg/http"
	pkgkafka "PriceFlow/pkg/kafka"
	applogger "PriceFlow/pkg/logger"
	"PriceFlow/pkg/queue"
)

// App owns the lifecycle of every pipeline component: the consumer
// member, the background poller, the optional websocket collector, the
// job manager and the HTTP API.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	member    *pkgkafka.Member
	poller    *usecase.Poller
	collector *usecase.StreamCollector
	jobs      *usecase.JobManager
	store     *internalrepo.PostgresStore
	cache     cache.Service
	pub       repository.Publisher
	replay    *queue.RedisQueue
	chClient  *pkgch.Client

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
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
) *App {
	return &App{
		cfg:       cfg,
		log:       log,
		member:    member,
		poller:    poller,
		collector: collector,
		jobs:      jobs,
		store:     store,
		cache:     c,
		pub:       pub,
		replay:    replay,
		chClient:  chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := api.NewPricesHandler(a.log, a.store, a.cache, a.jobs, a.cfg.Aggregator.CacheTTL)
	a.httpServer = xhttp.NewServer(handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	memberDone := make(chan error, 1)
	go func() {
		memberDone <- a.member.Run(ctx)
		close(memberDone)
	}()
	a.log.Info("consumer member started",
		applogger.String("group", a.cfg.Kafka.Consumer.GroupID),
		applogger.String("topic", a.cfg.Kafka.Topic),
	)

	if a.replay != nil {
		if err := a.replay.Start(); err != nil {
			a.log.Error("replay queue start failed", applogger.Error(err))
		}
	}

	if a.poller != nil {
		go a.poller.Run(ctx)
		a.log.Info("poller started",
			applogger.Strings("symbols", a.cfg.Poller.Symbols),
			applogger.Duration("interval", a.cfg.Poller.Interval),
		)
	}

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			a.log.Error("stream collector start failed", applogger.Error(err))
		} else {
			a.log.Info("stream collector started", applogger.Strings("symbols", a.cfg.Finnhub.Symbols))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start failed", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		a.log.Info("shutdown signal received")
	case err := <-memberDone:
		// the member only returns on its own when the group is broken
		a.log.Error("consumer member exited", applogger.Error(err))
	}

	cancel()
	return a.shutdown(context.Background(), memberDone)
}

// shutdown stops producers first so no new events enter the pipeline,
// then drains the consumer side and finally closes storage.
func (a *App) shutdown(ctx context.Context, memberDone <-chan error) error {
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("stream collector stop error", applogger.Error(err))
		}
	}
	if a.jobs != nil {
		a.jobs.Shutdown()
	}
	if a.replay != nil {
		stopCtx, stopCancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.replay.Stop(stopCtx); err != nil {
			a.log.Warn("replay queue stop error", applogger.Error(err))
		}
		stopCancel()
	}
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.log.Warn("publisher close error", applogger.Error(err))
		}
	}

	// member: leave the group so partitions are handed off cleanly,
	// and wait for the final offset flush before storage goes away
	if a.member != nil {
		a.member.Stop()
	}
	if memberDone != nil {
		select {
		case <-memberDone:
		case <-time.After(a.cfg.Server.ShutdownTimeout):
			a.log.Warn("consumer member did not stop within the shutdown timeout")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("postgres close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
