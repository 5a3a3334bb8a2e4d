//go:build wireinject
// +build wireinject

package di

import (
	"PriceFlow/pkg/config"
	"PriceFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideClickHouseClient,
		ProvideCache,
		ProvideKafkaProducer,

		// Repositories
		ProvideStore,
		ProvideAggregateStore,
		ProvideJobStore,
		ProvideRawArchive,
		ProvideReplayQueue,
		ProvidePublisher,
		ProvideProviders,

		// Use cases
		ProvideAggregator,
		ProvidePriceEventsHandler,
		ProvideMember,
		ProvideJobManager,
		ProvidePoller,
		ProvideStreamCollector,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
