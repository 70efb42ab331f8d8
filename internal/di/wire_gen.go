//go:build !wireinject
// +build !wireinject

// Maintained by hand to mirror the provider set in wire.go; keep the call
// order in step with provider dependencies when adding one.

package di

import (
	"OVIP/pkg/config"
	"OVIP/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, err
	}
	logger, err := ProvideLogger(cfg, producer)
	if err != nil {
		return nil, err
	}
	recorder := ProvideMetrics()
	pipelineMetrics := ProvidePipelineMetrics(recorder)
	redisCache, err := ProvideRedisCache(cfg)
	if err != nil {
		return nil, err
	}
	service := ProvideCache(redisCache)
	client, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	chPanelStore, err := ProvidePanelStore(cfg, client, logger)
	if err != nil {
		return nil, err
	}
	panelSource, err := ProvidePanelSource(cfg, chPanelStore, logger)
	if err != nil {
		return nil, err
	}
	engineer, err := ProvideEngineer(cfg, logger)
	if err != nil {
		return nil, err
	}
	featurePipeline := ProvideFeaturePipeline(cfg, panelSource, engineer, service, chPanelStore, producer, pipelineMetrics, logger)
	httpServiceBase := ProvideModelService(cfg, logger)
	directionScorer := ProvideDirectionScorer(httpServiceBase)
	levelScorer := ProvideLevelScorer(httpServiceBase)
	forecastUseCase := ProvideForecastUseCase(cfg, featurePipeline, directionScorer, levelScorer, pipelineMetrics, logger)
	insightsUseCase := ProvideInsightsUseCase(featurePipeline)
	rateLimiter := ProvideRateLimiter(cfg)
	redisQueue := ProvideRefreshQueue(cfg, redisCache, featurePipeline, logger)
	handler := ProvideFeaturesHandler(logger, featurePipeline, forecastUseCase, insightsUseCase, rateLimiter, pipelineMetrics, redisQueue)
	httpServer := ProvideHTTPServer(cfg, handler, logger, recorder)
	consumer, err := ProvideKafkaConsumer(cfg, logger)
	if err != nil {
		return nil, err
	}
	panelUpdatesHandler := ProvidePanelUpdatesHandler(cfg, chPanelStore, featurePipeline, pipelineMetrics, redisQueue, logger)
	app := ProvideApp(cfg, logger, httpServer, featurePipeline, consumer, panelUpdatesHandler, redisQueue, producer, client, service)
	return app, nil
}
