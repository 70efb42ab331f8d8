package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"OVIP/pkg/logger"
)

// RedisQueue is a list-backed job queue with delayed retries and a dead letter list.
// Several processes may share one queue; each message is handled once.
type RedisQueue struct {
	log     *logger.Logger
	cfg     Config
	client  *redis.Client
	jobs    map[string]Job
	mu      sync.RWMutex
	wg      sync.WaitGroup
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRedisQueue creates a queue on client. Jobs must be registered before Start.
func NewRedisQueue(l *logger.Logger, client *redis.Client, opts ...Option) *RedisQueue {
	cfg := Config{
		Workers:     1,
		RetryLimit:  3,
		RetryDelay:  10 * time.Second,
		KeyPrefix:   "ovip:queue",
		PollTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if l == nil {
		l = logger.Nop()
	}
	initQueueMetricsOnce()

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		log:    l.With(logger.String("component", "queue")),
		cfg:    cfg,
		client: client,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJob registers a job for its message type.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and launches the workers and the retry processor.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryProcessor()

	r.log.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.cfg.KeyPrefix),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight jobs.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message. Types without a local job are rejected.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	queueJobs.WithLabelValues(msgType, "enqueued").Inc()
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.log.Debug("queue worker started", logger.Int("worker_id", id))

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			r.processNext()
		}
	}
}

func (r *RedisQueue) processNext() {
	res, err := r.client.BRPop(r.ctx, r.cfg.PollTimeout, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.log.Error("brpop", logger.Error(err))
		select {
		case <-time.After(time.Second):
		case <-r.ctx.Done():
		}
		return
	}
	if len(res) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.log.Error("unmarshal message", logger.Error(err))
		return
	}
	if err := r.process(msg); err != nil {
		r.fail(msg, err)
	}
}

// process runs the message's job. Panics become errors.
func (r *RedisQueue) process(msg Message) (err error) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no job registered for type %q", msg.Type)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panic: %v", job.Name(), rec)
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		queueJobs.WithLabelValues(msg.Type, result).Inc()
	}()

	start := time.Now()
	err = job.Handle(r.ctx, msg.Payload)
	r.log.Debug("job handled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Duration("elapsed", time.Since(start)),
	)
	return err
}

func (r *RedisQueue) fail(msg Message, err error) {
	if errors.Is(err, context.Canceled) {
		// shutting down; put it back for another process
		r.push(r.queueKey(), msg)
		return
	}
	msg.Attempts++
	msg.LastError = err.Error()
	r.log.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts),
		logger.Error(err),
	)

	if msg.Attempts > r.cfg.RetryLimit {
		r.log.Error("max retries reached", logger.String("id", msg.ID), logger.String("type", msg.Type))
		r.push(r.deadLetterKey(), msg)
		return
	}
	data, merr := json.Marshal(msg)
	if merr != nil {
		r.log.Error("marshal retry", logger.Error(merr))
		return
	}
	at := time.Now().Add(r.cfg.RetryDelay)
	if zerr := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(at.Unix()), Member: data}).Err(); zerr != nil {
		r.log.Error("zadd retry", logger.Error(zerr))
	}
}

func (r *RedisQueue) push(key string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal message", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), key, data).Err(); err != nil {
		r.log.Error("lpush", logger.String("key", key), logger.Error(err))
	}
}

func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()

	interval := r.cfg.RetryDelay / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.moveDueRetries()
		}
	}
}

// moveDueRetries requeues retries whose time has come. ZRem decides which
// process owns a member, so a retry is requeued once.
func (r *RedisQueue) moveDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		n, err := r.client.ZRem(r.ctx, r.retryKey(), member).Result()
		if err != nil || n == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.queueKey(), member).Err(); err != nil {
			r.log.Error("requeue retry", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.cfg.KeyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.cfg.KeyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.cfg.KeyPrefix + ":dlq" }

var (
	queueJobs     *prometheus.CounterVec
	queueJobsOnce sync.Once
)

func initQueueMetricsOnce() {
	queueJobsOnce.Do(func() {
		queueJobs = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "ovip_queue_jobs_total", Help: "Queue jobs by type and result"},
			[]string{"type", "result"},
		)
	})
}

var _ Enqueuer = (*RedisQueue)(nil)
