package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	applogger "Kavach/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Enqueuer = (*RedisQueue)(nil)

// ErrNotRunning is returned by Enqueue before Start or after Stop.
var ErrNotRunning = errors.New("queue not running")

// RedisQueue is a list-backed job queue. Failed jobs are parked in a sorted
// set until their retry time and land in a dead-letter list after the
// retry limit.
type RedisQueue struct {
	logger    *applogger.Logger
	config    Config
	client    redis.Cmdable
	keyPrefix string
	pollWait  time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the prefix of the queue, retry and dead-letter keys.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithClock overrides time.Now for retry scheduling.
func WithClock(now func() time.Time) RedisQueueOption {
	return func(r *RedisQueue) { r.now = now }
}

func NewRedisQueue(lgr *applogger.Logger, cfg Config, client redis.Cmdable, opts ...RedisQueueOption) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if lgr == nil {
		lgr = applogger.Nop()
	}
	r := &RedisQueue{
		logger:    lgr,
		config:    cfg,
		client:    client,
		keyPrefix: "kavach:jobs",
		pollWait:  time.Second,
		now:       time.Now,
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register routes messages of job.Type() to job. Call before Start.
func (r *RedisQueue) Register(jobs ...Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		if _, exists := r.jobs[job.Type()]; exists {
			r.logger.Warn("job already registered", applogger.String("type", job.Type()))
			continue
		}
		r.jobs[job.Type()] = job
	}
}

// Start pings Redis and launches the workers and the retry mover. A queue
// without registered jobs only publishes.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	if len(r.jobs) == 0 {
		r.logger.Info("job publisher started", applogger.String("prefix", r.keyPrefix))
		return nil
	}
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryLoop()
	r.logger.Info("job queue started",
		applogger.Int("workers", r.config.Workers),
		applogger.String("prefix", r.keyPrefix))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs or ctx.
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
		return fmt.Errorf("timeout waiting for job workers: %w", ctx.Err())
	case <-done:
		r.logger.Info("job queue stopped")
		return nil
	}
}

// Enqueue pushes a job message onto the queue.
func (r *RedisQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	r.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	b, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("job worker started", applogger.Int("worker_id", id))
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		res, err := r.client.BRPop(r.ctx, r.pollWait, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			r.logger.Error("brpop failed", applogger.Error(err))
			select {
			case <-r.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.logger.Error("drop undecodable job", applogger.Error(err))
			continue
		}
		r.process(r.ctx, msg)
	}
}

func (r *RedisQueue) process(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job registered", applogger.String("type", msg.Type), applogger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		r.logger.Debug("job done",
			applogger.String("type", msg.Type),
			applogger.String("id", msg.ID),
			applogger.Duration("elapsed", time.Since(start)))
		return
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Warn("job cancelled", applogger.String("type", msg.Type), applogger.String("id", msg.ID))
		return
	}

	r.logger.Error("job failed",
		applogger.String("type", msg.Type),
		applogger.String("id", msg.ID),
		applogger.Int("attempt", msg.Attempts+1),
		applogger.Error(err))

	if msg.Attempts < r.config.RetryLimit {
		msg.Attempts++
		r.scheduleRetry(msg, r.now().Add(r.config.RetryDelay))
		return
	}
	r.deadLetter(msg)
}

func (r *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", applogger.Error(err))
		return
	}
	if err := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(at.Unix()),
		Member: b,
	}).Err(); err != nil {
		r.logger.Error("zadd retry", applogger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dead letter", applogger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), b).Err(); err != nil {
		r.logger.Error("lpush dead letter", applogger.Error(err))
		return
	}
	r.logger.Warn("job moved to dead letter", applogger.String("type", msg.Type), applogger.String("id", msg.ID))
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.moveDueRetries(r.ctx)
		}
	}
}

// moveDueRetries requeues every parked message whose retry time has passed.
func (r *RedisQueue) moveDueRetries(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch due retries", applogger.Error(err))
		}
		return
	}
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.retryKey(), member)
		pipe.LPush(ctx, r.queueKey(), member)
		if _, err := pipe.Exec(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("requeue retry", applogger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }
