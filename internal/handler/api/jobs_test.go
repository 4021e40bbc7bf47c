package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinDS/internal/usecase"
	"FinDS/pkg/cache"
	xhttp "FinDS/pkg/http"
	"FinDS/pkg/logger"
	"FinDS/pkg/queue"
)

// hookStore runs onGet once, right after the first read of a job.
type hookStore struct {
	cache.Service
	once  sync.Once
	onGet func()
}

func (s *hookStore) Get(ctx context.Context, key string, dest interface{}) error {
	err := s.Service.Get(ctx, key, dest)
	s.once.Do(s.onGet)
	return err
}

type progressFixture struct {
	store   cache.Service
	hub     *usecase.Hub
	handler *JobsHandler
	url     string
}

func newProgressFixture(t *testing.T, onGet func(f *progressFixture)) *progressFixture {
	t.Helper()
	lgr := logger.Nop()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { mc.Close() })

	f := &progressFixture{store: mc, hub: usecase.NewHub()}
	store := &hookStore{Service: mc, onGet: func() {}}
	if onGet != nil {
		store.onGet = func() { onGet(f) }
	}

	q := queue.NewLocalQueue(lgr, &queue.QueueConfig{Workers: 1})
	jobs := usecase.NewJobService(q, store, f.hub, nil, nil, usecase.JobServiceConfig{}, nil, lgr)
	f.handler = NewJobsHandler(lgr, jobs)

	srv := httptest.NewServer(xhttp.NewServer(NewRouter(f.handler), lgr, xhttp.WithMetricsPath("")).Echo())
	t.Cleanup(srv.Close)
	f.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/jobs/"
	return f
}

func (f *progressFixture) put(t *testing.T, id string, status usecase.JobStatus) {
	t.Helper()
	job := usecase.Job{ID: id, Type: usecase.JobTypeFactorsEM, Status: status, CreatedAt: time.Now().UTC()}
	require.NoError(t, f.store.Set(context.Background(), cache.GenerateKey("jobs", id), job, time.Hour))
}

func readUntilClose(t *testing.T, conn *websocket.Conn) []usecase.JobStatus {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got []usecase.JobStatus
	for {
		var ev usecase.JobEvent
		err := conn.ReadJSON(&ev)
		if err != nil {
			var closeErr *websocket.CloseError
			require.True(t, errors.As(err, &closeErr), err)
			assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
			return got
		}
		got = append(got, ev.Status)
	}
}

func TestProgressKeepsEventPublishedDuringRead(t *testing.T) {
	const id = "job-race"
	f := newProgressFixture(t, func(f *progressFixture) {
		// the job finishes between the subscription and the snapshot read
		f.put(t, id, usecase.JobCompleted)
		f.hub.Publish(usecase.JobEvent{JobID: id, Status: usecase.JobCompleted, Time: time.Now().UTC()})
	})
	f.put(t, id, usecase.JobRunning)

	conn, _, err := websocket.DefaultDialer.Dial(f.url+id, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, []usecase.JobStatus{usecase.JobRunning, usecase.JobCompleted}, readUntilClose(t, conn))
	assert.Eventually(t, func() bool { return f.hub.Subscribers(id) == 0 }, time.Second, 10*time.Millisecond)
}

func TestProgressPollsStoreWhenEventIsLost(t *testing.T) {
	const id = "job-remote"
	f := newProgressFixture(t, nil)
	f.handler.poll = 20 * time.Millisecond
	f.put(t, id, usecase.JobRunning)

	conn, _, err := websocket.DefaultDialer.Dial(f.url+id, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first usecase.JobEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, usecase.JobRunning, first.Status)

	// another replica finishes the job; its event never reaches this hub
	f.put(t, id, usecase.JobFailed)

	assert.Equal(t, []usecase.JobStatus{usecase.JobFailed}, readUntilClose(t, conn))
}

func TestProgressUnknownJob(t *testing.T) {
	f := newProgressFixture(t, nil)
	_, resp, err := websocket.DefaultDialer.Dial(f.url+"missing", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, 0, f.hub.Subscribers("missing"))
}
