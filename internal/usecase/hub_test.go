package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinDS/pkg/cache"
	"FinDS/pkg/logger"
	"FinDS/pkg/queue"
)

// memRelay stands in for a pub/sub channel shared by several replicas.
type memRelay struct {
	mu      sync.Mutex
	subs    []func([]byte)
	failing bool
}

func (r *memRelay) Publish(_ context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("relay down")
	}
	for _, deliver := range r.subs {
		deliver(payload)
	}
	return nil
}

func (r *memRelay) Subscribe(ctx context.Context, deliver func([]byte)) error {
	r.mu.Lock()
	r.subs = append(r.subs, deliver)
	r.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (r *memRelay) subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func runHub(t *testing.T, h *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestRelayedHubDeliversAcrossReplicas(t *testing.T) {
	relay := &memRelay{}
	worker := NewRelayedHub(relay, logger.Nop())
	web := NewRelayedHub(relay, logger.Nop())
	runHub(t, worker)
	runHub(t, web)
	require.Eventually(t, func() bool { return relay.subscribers() == 2 }, time.Second, 5*time.Millisecond)

	events, cancel := web.Subscribe("j1")
	defer cancel()

	worker.Publish(JobEvent{JobID: "j1", Status: JobCompleted})
	select {
	case ev := <-events:
		assert.Equal(t, "j1", ev.JobID)
		assert.Equal(t, JobCompleted, ev.Status)
	case <-time.After(time.Second):
		t.Fatal("relayed event not delivered")
	}
}

func TestRelayedHubFallsBackToLocalDelivery(t *testing.T) {
	relay := &memRelay{failing: true}
	h := NewRelayedHub(relay, logger.Nop())

	events, cancel := h.Subscribe("j1")
	defer cancel()

	h.Publish(JobEvent{JobID: "j1", Status: JobRunning})
	require.Len(t, events, 1)
	assert.Equal(t, JobRunning, (<-events).Status)
}

func TestHubRunWithoutRelay(t *testing.T) {
	assert.NoError(t, NewHub().Run(context.Background()))
}

// afterGetStore runs hook once, after the first read of the store.
type afterGetStore struct {
	cache.Service
	once sync.Once
	hook func()
}

func (s *afterGetStore) Get(ctx context.Context, key string, dest interface{}) error {
	err := s.Service.Get(ctx, key, dest)
	s.once.Do(s.hook)
	return err
}

func TestJobServiceWatchSeesEventsDuringRead(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	hub := NewHub()

	job := &Job{ID: "j1", Type: JobTypeFactorsEM, Status: JobRunning, CreatedAt: time.Now().UTC()}
	require.NoError(t, mc.Set(context.Background(), jobKey(job.ID), job, time.Hour))

	store := &afterGetStore{Service: mc, hook: func() {
		hub.Publish(JobEvent{JobID: "j1", Status: JobCompleted})
	}}
	q := queue.NewLocalQueue(logger.Nop(), &queue.QueueConfig{Workers: 1})
	svc := NewJobService(q, store, hub, nil, nil, JobServiceConfig{}, nil, logger.Nop())

	got, events, cancel, err := svc.Watch(context.Background(), "j1")
	require.NoError(t, err)
	defer cancel()

	assert.Equal(t, JobRunning, got.Status)
	require.Len(t, events, 1)
	assert.Equal(t, JobCompleted, (<-events).Status)
	assert.Equal(t, JobRunning, got.Event().Status)
}

func TestJobServiceWatchUnknownJob(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	hub := NewHub()
	q := queue.NewLocalQueue(logger.Nop(), &queue.QueueConfig{Workers: 1})
	svc := NewJobService(q, mc, hub, nil, nil, JobServiceConfig{}, nil, logger.Nop())

	_, _, _, err := svc.Watch(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Equal(t, 0, hub.Subscribers("missing"))
}
