package di

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	domrepo "OVIP/internal/domain/repository"
	domsvc "OVIP/internal/domain/service"
	"OVIP/internal/handler/api"
	internalrepo "OVIP/internal/repository"
	svcmetrics "OVIP/internal/service/metrics"
	"OVIP/internal/service/ratelimit"
	"OVIP/internal/services/analytics"
	"OVIP/internal/services/features"
	"OVIP/internal/services/ingest"
	"OVIP/internal/usecase"
	"OVIP/pkg/cache"
	pkgch "OVIP/pkg/clickhouse"
	"OVIP/pkg/config"
	xhttp "OVIP/pkg/http"
	pkgkafka "OVIP/pkg/kafka"
	applogger "OVIP/pkg/logger"
	pkgmetrics "OVIP/pkg/metrics"
	"OVIP/pkg/queue"
	"OVIP/pkg/server"
)

// ProvideLogger creates the application logger from the log section. With a
// producer and log.error_topic set, error lines are aggregated onto that topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l = l.With(applogger.String("env", cfg.Environment))
	if producer != nil && cfg.Log.ErrorTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{Topic: cfg.Log.ErrorTopic, Publisher: producer})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *pkgmetrics.Recorder {
	return pkgmetrics.New()
}

func ProvidePipelineMetrics(rec *pkgmetrics.Recorder) *svcmetrics.PipelineMetrics {
	return svcmetrics.NewPipelineMetrics(rec)
}

// ProvideRedisCache connects to Redis when enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis, or stands alone without it.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache()
	}
	return cache.NewLayeredCache(rc)
}

// ProvideClickHouseClient connects to ClickHouse when enabled; nil otherwise.
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
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvidePanelStore creates the ClickHouse panel store and its schema.
func ProvidePanelStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (*internalrepo.CHPanelStore, error) {
	if ch == nil {
		return nil, nil
	}
	store := internalrepo.NewCHPanelStore(ch, cfg.ClickHouse.Database, l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvidePanelSource selects where the pipeline reads the panel from.
func ProvidePanelSource(cfg *config.Config, store *internalrepo.CHPanelStore, l *applogger.Logger) (domrepo.PanelSource, error) {
	switch cfg.Data.Source {
	case "clickhouse":
		if store == nil {
			return nil, fmt.Errorf("clickhouse source without a clickhouse client")
		}
		return store, nil
	default:
		return ingest.NewFileSource(cfg.Data.Dir, cfg.Data.Candidates, cfg.Data.PerformanceFile, l), nil
	}
}

func ProvideEngineer(cfg *config.Config, l *applogger.Logger) (*features.Engineer, error) {
	cutoff, err := features.ParseCutoff(cfg.Features.TrainCutoff)
	if err != nil {
		return nil, fmt.Errorf("features.train_cutoff: %w", err)
	}
	mode, err := features.ParseCenteringMode(cfg.Features.Centering)
	if err != nil {
		return nil, fmt.Errorf("features.centering: %w", err)
	}
	return features.NewEngineer(cutoff, features.WithLogger(l), features.WithCenteringMode(mode)), nil
}

// ProvideKafkaProducer creates a Kafka producer when brokers are configured; nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideFeaturePipeline assembles the pipeline with whatever sinks are configured.
func ProvideFeaturePipeline(
	cfg *config.Config,
	src domrepo.PanelSource,
	eng *features.Engineer,
	c cache.Service,
	store *internalrepo.CHPanelStore,
	producer *pkgkafka.Producer,
	pm *svcmetrics.PipelineMetrics,
	l *applogger.Logger,
) *usecase.FeaturePipeline {
	opts := []usecase.PipelineOption{
		usecase.WithSummaryCache(c),
		usecase.WithMetrics(pm),
		usecase.WithPipelineLogger(l.With(applogger.String("component", "pipeline"))),
		usecase.WithCacheTTL(cfg.Features.CacheTTL),
	}
	if cfg.Features.Persist && store != nil {
		opts = append(opts, usecase.WithFeatureStore(store))
	}
	if producer != nil && cfg.Kafka.SnapshotTopic != "" {
		opts = append(opts, usecase.WithPublisher(internalrepo.NewKafkaFeaturePublisher(producer, cfg.Kafka.SnapshotTopic)))
	}
	return usecase.NewFeaturePipeline(src, eng, opts...)
}

func ProvideModelService(cfg *config.Config, l *applogger.Logger) *analytics.HTTPServiceBase {
	return analytics.NewHTTPServiceBase(cfg, l.With(applogger.String("component", "models")))
}

func ProvideDirectionScorer(base *analytics.HTTPServiceBase) domsvc.DirectionScorer {
	return analytics.NewHTTPDirectionScorer(base)
}

func ProvideLevelScorer(base *analytics.HTTPServiceBase) domsvc.LevelScorer {
	return analytics.NewHTTPLevelScorer(base)
}

func ProvideForecastUseCase(
	cfg *config.Config,
	pipeline *usecase.FeaturePipeline,
	direction domsvc.DirectionScorer,
	level domsvc.LevelScorer,
	pm *svcmetrics.PipelineMetrics,
	l *applogger.Logger,
) *usecase.ForecastUseCase {
	return usecase.NewForecastUseCase(pipeline, direction, level, cfg.Models.LevelStdError, pm, l)
}

func ProvideInsightsUseCase(pipeline *usecase.FeaturePipeline) *usecase.InsightsUseCase {
	return usecase.NewInsightsUseCase(pipeline)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
}

// ProvideRefreshQueue creates the Redis job queue running pipeline refreshes; nil when disabled.
func ProvideRefreshQueue(cfg *config.Config, rc *cache.RedisCache, pipeline *usecase.FeaturePipeline, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, rc.Client(),
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithRetry(cfg.Queue.RetryLimit, cfg.Queue.RetryDelay),
		queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"),
	)
	q.RegisterJob(usecase.NewPipelineRefreshJob(pipeline, l))
	return q
}

func ProvideFeaturesHandler(
	l *applogger.Logger,
	pipeline *usecase.FeaturePipeline,
	forecast *usecase.ForecastUseCase,
	insights *usecase.InsightsUseCase,
	limiter *ratelimit.Limiter,
	pm *svcmetrics.PipelineMetrics,
	q *queue.RedisQueue,
) xhttp.Handler {
	h := api.NewFeaturesEchoHandler(l, pipeline, forecast, insights, limiter, pm)
	if q != nil {
		h.WithRefreshQueue(q)
	}
	return h
}

func ProvideHTTPServer(cfg *config.Config, h xhttp.Handler, l *applogger.Logger, rec *pkgmetrics.Recorder) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, rec.Handler()))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML; nil without brokers.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.KafkaEnabled() || cfg.Kafka.UpdatesTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		After: func(_ context.Context, topic string, km kafka.Message, _ []byte, err error) {
			if err != nil {
				l.Warn("observation rejected",
					applogger.String("topic", topic),
					applogger.Int("partition", km.Partition),
					applogger.String("offset", fmt.Sprint(km.Offset)),
					applogger.Error(err),
				)
			}
		},
	})
	return consumer, nil
}

// ProvidePanelUpdatesHandler appends observations to ClickHouse; nil without a store.
func ProvidePanelUpdatesHandler(
	cfg *config.Config,
	store *internalrepo.CHPanelStore,
	pipeline *usecase.FeaturePipeline,
	pm *svcmetrics.PipelineMetrics,
	q *queue.RedisQueue,
	l *applogger.Logger,
) *usecase.PanelUpdatesHandler {
	if store == nil {
		return nil
	}
	h := usecase.NewPanelUpdatesHandler(cfg.Kafka.UpdatesTopic, store, pipeline, pm, l)
	if q != nil {
		h.WithRefreshQueue(q)
	}
	return h
}

// ProvideApp creates the application server and hands it every resource to close.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	pipeline *usecase.FeaturePipeline,
	consumer *pkgkafka.Consumer,
	updates *usecase.PanelUpdatesHandler,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	app := server.New(cfg, l, srv, pipeline)

	if consumer != nil && updates != nil {
		app.WithConsumer(consumer, updates)
	} else if consumer != nil {
		l.Warn("panel updates need clickhouse; consumer disabled", applogger.String("topic", cfg.Kafka.UpdatesTopic))
		_ = consumer.Stop(context.Background())
	}
	if q != nil {
		app.WithQueue(q)
	}

	if ch != nil {
		app.OnClose("clickhouse", ch.Close)
	}
	app.OnClose("cache", c.Close)
	if producer != nil {
		app.OnClose("kafka producer", producer.Close)
	}
	return app
}
