package kafka

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"FinDS/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads the topics of its registered handlers and dispatches
// messages to a worker pool. At most one message per (topic, partition) is
// in flight so per-key ordering survives the pool.
type Consumer struct {
	cfg      *ConsumerConfig
	logger   *logger.Logger
	readers  map[string]*kafka.Reader
	handlers map[string]MessageHandler
	hook     ConsumerHook
	dlq      messageWriter
	msgChan  chan kafka.Message
	stopChan chan struct{}
	stopOnce sync.Once
	readWG   sync.WaitGroup
	workWG   sync.WaitGroup
	lockMu   sync.Mutex
	locks    map[string]*sync.Mutex
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(lgr *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "finds",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:      cfg,
		logger:   lgr,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		hook:     NoopHook{},
		msgChan:  make(chan kafka.Message, cfg.BufferSize),
		stopChan: make(chan struct{}),
		locks:    make(map[string]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	initConsumerMetrics()
	return c, nil
}

// RegisterHandler registers a message handler for its topic. Call before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.logger.Warn("kafka handler already registered", logger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start creates one reader per topic and the worker pool.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no kafka handlers registered")
	}

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workWG.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.readWG.Add(1)
		go c.read(topic, reader)
	}

	c.logger.Info("kafka consumer started",
		logger.Int("workers", c.cfg.WorkerCount),
		logger.Int("topics", len(c.readers)),
		logger.String("group", c.cfg.GroupID))
	return nil
}

// Stop stops readers first, lets workers drain the buffer, then closes
// readers and the DLQ writer.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error

	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.readWG.Wait()
		close(c.msgChan)

		done := make(chan struct{})
		go func() {
			c.workWG.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.logger.Warn("close kafka reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.logger.Warn("close dlq writer", logger.Error(err))
			}
		}
		c.logger.Info("kafka consumer stopped")
	})

	return stopErr
}

func (c *Consumer) read(topic string, reader *kafka.Reader) {
	defer c.readWG.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("kafka fetch", logger.String("topic", topic), logger.Error(err))
			select {
			case <-time.After(time.Second):
				continue
			case <-c.stopChan:
				return
			}
		}

		select {
		case c.msgChan <- msg:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.workWG.Done()

	for msg := range c.msgChan {
		c.process(msg)
	}
}

func (c *Consumer) process(msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in kafka handler", logger.String("topic", msg.Topic), logger.Any("panic", r))
		}
	}()

	pl := c.partitionLock(msg.Topic, msg.Partition)
	pl.Lock()
	defer pl.Unlock()

	err := c.handleWithRetry(handler, msg)
	if err != nil {
		c.hook.OnError(context.Background(), msg.Topic, msg, msg.Value, err)
		c.logger.Error("kafka message failed",
			logger.String("topic", msg.Topic),
			logger.Int64("offset", msg.Offset),
			logger.Error(err))
		c.publishDLQ(msg)
	}

	// commit after success or DLQ so a poison message does not loop
	if err == nil || c.dlq != nil {
		if reader := c.readers[msg.Topic]; reader != nil {
			_ = c.commitWithRetry(reader, msg, 3)
		}
	}
	consumerHandleLatency.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) handleWithRetry(handler MessageHandler, msg kafka.Message) error {
	var err error
	for attempt := 1; ; attempt++ {
		hctx, hmsg, hdata, berr := c.hook.BeforeHandle(context.Background(), msg.Topic, msg, msg.Value)
		if berr != nil {
			return berr
		}
		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, msg.Topic, hmsg, hdata, err)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-c.stopChan:
			return err
		}
	}
}

func (c *Consumer) publishDLQ(msg kafka.Message) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.Topic)}},
	})
	if err != nil {
		c.logger.Error("kafka dlq write", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
	}
}

func (c *Consumer) commitWithRetry(reader *kafka.Reader, msg kafka.Message, max int) error {
	var err error
	for attempt := 1; attempt <= max; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = reader.CommitMessages(ctx, msg)
		cancel()
		if err == nil {
			return err
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.logger.Warn("kafka commit failed", logger.Int("attempts", max), logger.Error(err))
	return err
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to
// half of it at random.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

var (
	consumerMetricsOnce   sync.Once
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func initConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "finds_kafka_consumer_queue_depth", Help: "Messages waiting for a consumer worker"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "finds_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
