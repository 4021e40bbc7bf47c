package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"FinDS/pkg/logger"
)

var (
	ErrNotRunning = errors.New("queue not running")
	ErrNoJob      = errors.New("no job registered for type")
	ErrQueueFull  = errors.New("queue full")
)

// Queue is implemented by RedisQueue and LocalQueue.
type Queue interface {
	RegisterJob(job Job)
	Start() error
	Stop(ctx context.Context) error
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers    int           // number of workers
	QueueSize  int           // buffered messages (local queue only)
	RetryLimit int           // retries after the first failure
	RetryDelay time.Duration // delay before a retry
}

func (c *QueueConfig) withDefaults() *QueueConfig {
	out := QueueConfig{}
	if c != nil {
		out = *c
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 64
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = 10 * time.Second
	}
	return &out
}

// Message is the envelope stored on the queue.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

func newMessage(id, msgType string, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Message{ID: id, Type: msgType, Payload: raw, Timestamp: time.Now()}, nil
}

// ParsePayload decodes a job payload into T.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var result T

	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	case []byte:
		if err := json.Unmarshal(p, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		return &result, nil
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}
}

// registry maps message types to jobs and runs them with the shared
// retry policy.
type registry struct {
	logger *logger.Logger
	config *QueueConfig
	mu     sync.RWMutex
	jobs   map[string]Job
}

func newRegistry(lgr *logger.Logger, config *QueueConfig) *registry {
	return &registry{logger: lgr, config: config, jobs: make(map[string]Job)}
}

func (r *registry) register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

func (r *registry) lookup(msgType string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[msgType]
	return job, ok
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeRetry
	outcomeDead
	outcomeCancelled
)

// run handles msg and decides what happens next. On outcomeRetry the
// message's attempt counter has been incremented.
func (r *registry) run(ctx context.Context, msg *Message) outcome {
	job, ok := r.lookup(msg.Type)
	if !ok {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return outcomeDead
	}

	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	elapsed := time.Since(start)
	if err == nil {
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed_ms", elapsed))
		return outcomeDone
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Warn("message cancelled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed_ms", elapsed))
		return outcomeCancelled
	}

	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts < r.config.RetryLimit {
		msg.Attempts++
		return outcomeRetry
	}
	r.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
	return outcomeDead
}
