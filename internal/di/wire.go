//go:build wireinject
// +build wireinject

package di

import (
	"TradeMind/pkg/config"
	"TradeMind/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Metrics
		ProvideMetrics,
		ProvideDecisionMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideRedis,
		ProvideKafkaConsumer,

		// Repositories
		ProvideCheckpointStore,
		ProvideDecisionStore,
		ProvideBarHistory,
		ProvideDecisionPublisher,

		// Use cases
		ProvideEngine,
		ProvideBarProcessor,
		ProvidePipeline,
		ProvideCheckpointer,
		ProvideRetrainer,
		ProvideKafkaHandlers,
		ProvideBarCollector,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
