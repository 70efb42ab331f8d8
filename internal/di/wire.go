//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"OVIP/pkg/config"
	"OVIP/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvidePipelineMetrics,
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,
		ProvidePanelStore,
		ProvideKafkaConsumer,

		// Feature pipeline
		ProvidePanelSource,
		ProvideEngineer,
		ProvideFeaturePipeline,

		// Model service
		ProvideModelService,
		ProvideDirectionScorer,
		ProvideLevelScorer,

		// Use cases
		ProvideForecastUseCase,
		ProvideInsightsUseCase,
		ProvideRefreshQueue,
		ProvidePanelUpdatesHandler,

		// Transport
		ProvideRateLimiter,
		ProvideFeaturesHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
