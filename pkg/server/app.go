package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OVIP/internal/usecase"
	"OVIP/pkg/config"
	xhttp "OVIP/pkg/http"
	pkgkafka "OVIP/pkg/kafka"
	applogger "OVIP/pkg/logger"
	"OVIP/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	pipeline   *usecase.FeaturePipeline
	consumer   *pkgkafka.Consumer
	handlers   []pkgkafka.MessageHandler
	queue      *queue.RedisQueue
	closers    []closer
}

type closer struct {
	name string
	fn   func() error
}

// New creates a new App. Optional parts are attached with the With methods.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, pipeline *usecase.FeaturePipeline) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        l,
		httpServer: httpServer,
		pipeline:   pipeline,
	}
}

// WithConsumer attaches a Kafka consumer and the handlers it serves.
func (a *App) WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) *App {
	a.consumer = c
	a.handlers = append(a.handlers, handlers...)
	return a
}

// WithQueue attaches the job queue workers.
func (a *App) WithQueue(q *queue.RedisQueue) *App {
	a.queue = q
	return a
}

// OnClose registers a resource to release on shutdown. Closers run in reverse order.
func (a *App) OnClose(name string, fn func() error) *App {
	a.closers = append(a.closers, closer{name: name, fn: fn})
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start warms the pipeline and starts every background component.
// A failed first run is logged; the API retries on demand.
func (a *App) Start(ctx context.Context) error {
	if a.pipeline != nil {
		warmCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		res, err := a.pipeline.Run(warmCtx)
		cancel()
		if err != nil {
			a.log.Warn("initial pipeline run failed", applogger.Error(err))
		} else {
			a.log.Info("initial pipeline run",
				applogger.String("run_id", res.Summary.RunID),
				applogger.Int("rows", res.Summary.Rows),
			)
		}
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return err
		}
	}

	if a.consumer != nil && len(a.handlers) > 0 {
		topics := make([]string, 0, len(a.handlers))
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
			topics = append(topics, h.Topic())
		}
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.Strings("topics", topics))
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	return nil
}

// Shutdown stops intake first, then workers, then infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	timeout := 10 * time.Second
	if a.cfg != nil && a.cfg.Server.ShutdownTimeout > 0 {
		timeout = a.cfg.Server.ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Stop(shutdownCtx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	// flush collected errors before the producer is closed
	a.log.RemoveCollector()

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
