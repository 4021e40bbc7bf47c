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
	"github.com/redis/go-redis/v9"

	"FinDS/pkg/logger"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
	ModeConsumerOnly
)

func (m QueueMode) String() string {
	switch m {
	case ModeProducerOnly:
		return "producer-only"
	case ModeConsumerOnly:
		return "consumer-only"
	default:
		return "producer-consumer"
	}
}

// RedisQueue keeps messages in a Redis list (LPUSH/BRPOP), delayed retries
// in a sorted set scored by due time and exhausted messages in a dead letter
// list, so several processes can share one queue.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	registry  *registry
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	rq := &RedisQueue{
		logger:    lgr,
		config:    cfg,
		client:    client,
		registry:  newRegistry(lgr, cfg),
		mode:      mode,
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "finds:queue",
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob registers a handler. Producer-only queues ignore it.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.logger.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}
	r.registry.register(job)
}

// Start pings Redis and, unless producer-only, starts the workers and the
// retry mover.
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

	if r.mode != ModeProducerOnly {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.retryProcessor()
	}
	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("mode", r.mode.String()))
	return nil
}

// Stop gracefully stops the queue.
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
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Enqueue adds a message to the queue. Queues that consume also check that
// a job is registered for msgType.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		return ErrNotRunning
	}
	if r.mode != ModeProducerOnly {
		if _, ok := r.registry.lookup(msgType); !ok {
			return fmt.Errorf("%w: %s", ErrNoJob, msgType)
		}
	}

	msg, err := newMessage(uuid.NewString(), msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Len reports queued, delayed and dead message counts.
func (r *RedisQueue) Len(ctx context.Context) (queued, retrying, dead int64, err error) {
	pipe := r.client.Pipeline()
	q := pipe.LLen(ctx, r.queueKey())
	z := pipe.ZCard(ctx, r.retryKey())
	d := pipe.LLen(ctx, r.deadLetterKey())
	if _, err = pipe.Exec(ctx); err != nil {
		return 0, 0, 0, err
	}
	return q.Val(), z.Val(), d.Val(), nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for r.ctx.Err() == nil {
		r.processNext()
	}
}

func (r *RedisQueue) processNext() {
	result, err := r.client.BRPop(r.ctx, time.Second, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		return
	}

	switch r.registry.run(r.ctx, &msg) {
	case outcomeRetry:
		r.push(&msg, func(data []byte) error {
			due := time.Now().Add(r.config.RetryDelay)
			return r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(due.Unix()), Member: data}).Err()
		})
	case outcomeDead:
		r.push(&msg, func(data []byte) error {
			return r.client.LPush(context.Background(), r.deadLetterKey(), data).Err()
		})
	case outcomeCancelled:
		// put the message back so another process picks it up
		r.push(&msg, func(data []byte) error {
			return r.client.RPush(context.Background(), r.queueKey(), data).Err()
		})
	}
}

func (r *RedisQueue) push(msg *Message, write func([]byte) error) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal message", logger.Error(err))
		return
	}
	if err := write(data); err != nil {
		r.logger.Error("requeue message", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Second)
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

func (r *RedisQueue) moveDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, data := range due {
		// ZREM decides which process owns the message
		removed, err := r.client.ZRem(r.ctx, r.retryKey(), data).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.queueKey(), data).Err(); err != nil {
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string {
	return r.keyPrefix + ":messages"
}

func (r *RedisQueue) retryKey() string {
	return r.keyPrefix + ":retry"
}

func (r *RedisQueue) deadLetterKey() string {
	return r.keyPrefix + ":dlq"
}
