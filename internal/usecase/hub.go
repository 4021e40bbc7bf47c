package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	domrepo "FinDS/internal/domain/repository"
	applogger "FinDS/pkg/logger"
)

const relayTimeout = 2 * time.Second

// Hub fans job events out to subscribers of a job id. Slow subscribers
// miss events instead of blocking the publisher.
//
// With a relay, published events travel through it and come back to every
// hub subscribed to the relay, so a socket on one replica sees jobs run by
// another.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan JobEvent]struct{}
	buffer int
	relay  domrepo.EventRelay
	log    *applogger.Logger
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan JobEvent]struct{}), buffer: 16, log: applogger.Nop()}
}

// NewRelayedHub creates a hub whose events go through relay. Run must be
// running for relayed events to reach local subscribers.
func NewRelayedHub(relay domrepo.EventRelay, lgr *applogger.Logger) *Hub {
	h := NewHub()
	h.relay = relay
	if lgr != nil {
		h.log = lgr
	}
	return h
}

// Subscribe returns a channel of events for jobID and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(jobID string) (<-chan JobEvent, func()) {
	ch := make(chan JobEvent, h.buffer)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan JobEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subs[jobID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subs, jobID)
				}
			}
			close(ch)
		})
	}
}

// Publish sends ev through the relay, or delivers it to local subscribers
// when there is no relay or the relay fails.
func (h *Hub) Publish(ev JobEvent) {
	if h.relay != nil {
		b, err := json.Marshal(ev)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), relayTimeout)
			err = h.relay.Publish(ctx, b)
			cancel()
		}
		if err == nil {
			return
		}
		h.log.Warn("relay job event", applogger.String("job_id", ev.JobID), applogger.Error(err))
	}
	h.deliver(ev)
}

// Run feeds relayed events to local subscribers until ctx is done. Without
// a relay it returns at once.
func (h *Hub) Run(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	return h.relay.Subscribe(ctx, func(b []byte) {
		var ev JobEvent
		if err := json.Unmarshal(b, &ev); err != nil {
			h.log.Warn("decode relayed job event", applogger.Error(err))
			return
		}
		h.deliver(ev)
	})
}

func (h *Hub) deliver(ev JobEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.JobID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers counts the open subscriptions of a job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
