package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Enqueuer accepts jobs for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Config contains the configuration for the queue.
type Config struct {
	Workers    int           // number of workers
	RetryLimit int           // number of maximum retries
	RetryDelay time.Duration // time delay between retries
	KeyPrefix  string
	// PollTimeout bounds one blocking pop so workers notice Stop.
	PollTimeout time.Duration
}

// Option configures Config.
type Option func(*Config)

func WithWorkers(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Workers = n
		}
	}
}

func WithRetry(limit int, delay time.Duration) Option {
	return func(c *Config) {
		if limit >= 0 {
			c.RetryLimit = limit
		}
		if delay > 0 {
			c.RetryDelay = delay
		}
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		if prefix != "" {
			c.KeyPrefix = prefix
		}
	}
}

// Message is the envelope stored in Redis.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}
