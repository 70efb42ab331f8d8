package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"OVIP/pkg/config"
	xhttp "OVIP/pkg/http"
	"OVIP/pkg/logger"
)

// ErrServiceUnavailable means the model service is not configured or its breaker is open.
var ErrServiceUnavailable = errors.New("model service unavailable")

// HTTPServiceBase is the shared transport for model-service clients: JSON POST,
// bounded retries on transient failures and a circuit breaker around each call.
type HTTPServiceBase struct {
	baseURL string
	client  *xhttp.Client
	retries int
	backoff time.Duration
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

// NewHTTPServiceBase builds the client from the models section of config.
func NewHTTPServiceBase(cfg *config.Config, log *logger.Logger) *HTTPServiceBase {
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.Models.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	trips := cfg.Models.Breaker.ConsecutiveFailures
	if trips == 0 {
		trips = 3
	}

	b := &HTTPServiceBase{
		baseURL: cfg.Models.ServiceURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		retries: cfg.Models.Retries,
		backoff: 50 * time.Millisecond,
		log:     log,
	}
	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "model-service",
		Interval: 60 * time.Second,
		Timeout:  cfg.Models.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
		IsSuccessful: func(err error) bool {
			// client errors say nothing about the service's health
			var se *xhttp.StatusError
			return err == nil || (errors.As(err, &se) && !se.Temporary())
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})
	return b
}

// Configured reports whether a service URL is set.
func (b *HTTPServiceBase) Configured() bool { return b != nil && b.baseURL != "" }

// PostJSON posts payload to path under baseURL and decodes JSON into dest.
func (b *HTTPServiceBase) PostJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	if !b.Configured() {
		return fmt.Errorf("post %s: %w: no service url", path, ErrServiceUnavailable)
	}
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    b.baseURL + path,
			Body:   payload,
		}, dest)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("post %s: %w: %v", path, ErrServiceUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return nil
}

// PostJSONWithRetry retries transient failures up to the configured attempts.
func (b *HTTPServiceBase) PostJSONWithRetry(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	attempts := b.retries
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = b.PostJSON(ctx, path, payload, dest)
		if err == nil || !retryable(err) || i == attempts {
			return err
		}
		// simple linear backoff
		select {
		case <-time.After(time.Duration(i) * b.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
