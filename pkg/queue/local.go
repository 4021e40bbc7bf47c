package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinDS/pkg/logger"
)

// LocalQueue runs jobs on in-process workers fed by a buffered channel.
// Messages do not survive a restart; use RedisQueue for that.
type LocalQueue struct {
	logger   *logger.Logger
	config   *QueueConfig
	registry *registry
	ch       chan Message
	wg       sync.WaitGroup
	retries  sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	deadMu   sync.Mutex
	dead     []Message
}

// NewLocalQueue creates a stopped local queue.
func NewLocalQueue(lgr *logger.Logger, config *QueueConfig) *LocalQueue {
	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		logger:   lgr,
		config:   cfg,
		registry: newRegistry(lgr, cfg),
		ch:       make(chan Message, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (q *LocalQueue) RegisterJob(job Job) {
	q.registry.register(job)
}

func (q *LocalQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return fmt.Errorf("queue already running")
	}
	q.running = true

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("local queue started", logger.Int("workers", q.config.Workers))
	return nil
}

// Stop cancels in-flight jobs and waits for workers to exit.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		q.retries.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		q.logger.Info("local queue stopped")
		return nil
	}
}

// Enqueue never blocks: a full buffer returns ErrQueueFull.
func (q *LocalQueue) Enqueue(_ context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if !q.running {
		return ErrNotRunning
	}
	if _, ok := q.registry.lookup(msgType); !ok {
		return fmt.Errorf("%w: %s", ErrNoJob, msgType)
	}

	msg, err := newMessage(uuid.NewString(), msgType, payload)
	if err != nil {
		return err
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// DeadLetters returns messages that exhausted their retries.
func (q *LocalQueue) DeadLetters() []Message {
	q.deadMu.Lock()
	defer q.deadMu.Unlock()
	return append([]Message(nil), q.dead...)
}

func (q *LocalQueue) worker(id int) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
			return
		case msg := <-q.ch:
			q.handle(msg)
		}
	}
}

func (q *LocalQueue) handle(msg Message) {
	switch q.registry.run(q.ctx, &msg) {
	case outcomeRetry:
		q.retries.Add(1)
		go func() {
			defer q.retries.Done()
			timer := time.NewTimer(q.config.RetryDelay)
			defer timer.Stop()
			select {
			case <-q.ctx.Done():
			case <-timer.C:
				select {
				case q.ch <- msg:
				case <-q.ctx.Done():
				}
			}
		}()
	case outcomeDead:
		q.deadMu.Lock()
		q.dead = append(q.dead, msg)
		q.deadMu.Unlock()
	}
}
