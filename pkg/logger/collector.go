package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of aggregated entries, normally to a Kafka topic.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries that force a flush
	Topic          string
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates error lines by (level, message, fields, caller)
// and publishes them in batches.
type LogCollector struct {
	config  *CollectionConfig
	entries map[string]*AggregatedLogEntry
	mu      sync.Mutex
	sends   sync.WaitGroup
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}

	c := &LogCollector{
		config:  config,
		entries: make(map[string]*AggregatedLogEntry),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.config.CountThreshold {
		c.flushLocked()
	}
}

// Pending is the number of unique entries waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	// json.Marshal sorts map keys, so equal field sets hash equally
	data, _ := json.Marshal(struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *LogCollector) loop() {
	defer close(c.stopped)

	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.done:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 {
		return
	}

	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		batch = append(batch, *entry)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	c.entries = make(map[string]*AggregatedLogEntry)

	c.sends.Add(1)
	go func() {
		defer c.sends.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, batch); err != nil {
			// the logger cannot log its own failure through itself
			_, _ = os.Stderr.WriteString("log collector: publish failed: " + err.Error() + "\n")
		}
	}()
}

// Close flushes pending entries and waits for in-flight publishes.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.done) })
	<-c.stopped
	c.sends.Wait()
}
