package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xhttp "FinDS/pkg/http"
	"FinDS/pkg/logger"
	"FinDS/pkg/queue"
)

func TestAppRunStopsOnCancel(t *testing.T) {
	lgr := logger.Nop()
	q := queue.NewLocalQueue(lgr, &queue.QueueConfig{Workers: 1})
	q.RegisterJob(queue.JobFunc{JobType: "noop", Fn: func(context.Context, interface{}) error { return nil }})

	srv := xhttp.NewServer(nil, lgr, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetricsPath(""))

	var closed []string
	app := New(lgr, srv,
		WithQueue(q),
		WithCloser("first", func() error { closed = append(closed, "first"); return nil }),
		WithCloser("second", func() error { closed = append(closed, "second"); return errors.New("boom") }),
		WithStopTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		return q.Enqueue(context.Background(), "noop", struct{}{}) == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	assert.Equal(t, []string{"first", "second"}, closed)
	assert.ErrorIs(t, q.Enqueue(context.Background(), "noop", struct{}{}), queue.ErrNotRunning)
}

func TestAppRunsBackgroundUntilShutdown(t *testing.T) {
	lgr := logger.Nop()
	srv := xhttp.NewServer(nil, lgr, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetricsPath(""))

	started := make(chan struct{})
	stopped := make(chan struct{})
	app := New(lgr, srv, WithBackground("events", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(stopped)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("background runner did not start")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
	select {
	case <-stopped:
	default:
		t.Fatal("background runner still running")
	}
}
