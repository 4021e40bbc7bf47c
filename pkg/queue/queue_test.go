package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinDS/pkg/logger"
)

type emPayload struct {
	JobID string `json:"job_id"`
	Kmax  int    `json:"kmax"`
}

func TestParsePayload(t *testing.T) {
	raw := json.RawMessage(`{"job_id":"a","kmax":3}`)
	p, err := ParsePayload[emPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, emPayload{JobID: "a", Kmax: 3}, *p)

	p, err = ParsePayload[emPayload](map[string]interface{}{"job_id": "b", "kmax": 1})
	require.NoError(t, err)
	assert.Equal(t, "b", p.JobID)

	direct := emPayload{JobID: "c"}
	p, err = ParsePayload[emPayload](direct)
	require.NoError(t, err)
	assert.Equal(t, "c", p.JobID)

	_, err = ParsePayload[emPayload](42)
	assert.Error(t, err)
}

func TestLocalQueueRunsJobs(t *testing.T) {
	q := NewLocalQueue(logger.Nop(), &QueueConfig{Workers: 2, QueueSize: 8})
	got := make(chan emPayload, 4)
	q.RegisterJob(JobFunc{JobName: "em", JobType: "factors_em", Fn: func(_ context.Context, payload interface{}) error {
		p, err := ParsePayload[emPayload](payload)
		if err != nil {
			return err
		}
		got <- *p
		return nil
	}})

	assert.ErrorIs(t, q.Enqueue(context.Background(), "factors_em", emPayload{}), ErrNotRunning)
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "factors_em", emPayload{JobID: "x", Kmax: 4}))
	assert.ErrorIs(t, q.Enqueue(context.Background(), "unknown", nil), ErrNoJob)

	select {
	case p := <-got:
		assert.Equal(t, emPayload{JobID: "x", Kmax: 4}, p)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestLocalQueueRetriesThenDeadLetters(t *testing.T) {
	q := NewLocalQueue(logger.Nop(), &QueueConfig{Workers: 1, RetryLimit: 2, RetryDelay: time.Millisecond})
	var calls atomic.Int32
	q.RegisterJob(JobFunc{JobName: "fail", JobType: "fail", Fn: func(context.Context, interface{}) error {
		calls.Add(1)
		return errors.New("boom")
	}})
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())

	require.NoError(t, q.Enqueue(context.Background(), "fail", emPayload{JobID: "d"}))

	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, q.DeadLetters()[0].Attempts)
}

func TestLocalQueueFull(t *testing.T) {
	q := NewLocalQueue(logger.Nop(), &QueueConfig{Workers: 1, QueueSize: 1})
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	q.RegisterJob(JobFunc{JobName: "slow", JobType: "slow", Fn: func(ctx context.Context, _ interface{}) error {
		started <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}})
	require.NoError(t, q.Start())
	defer q.Stop(context.Background())
	defer close(block)

	require.NoError(t, q.Enqueue(context.Background(), "slow", nil))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), "slow", nil))
	assert.ErrorIs(t, q.Enqueue(context.Background(), "slow", nil), ErrQueueFull)
}
