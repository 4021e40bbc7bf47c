package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinDS/internal/domain/models"
	"FinDS/internal/repository"
	"FinDS/internal/usecase"
	"FinDS/pkg/cache"
	xhttp "FinDS/pkg/http"
	"FinDS/pkg/logger"
	"FinDS/pkg/queue"
)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	server *xhttp.Server
	jobs   *usecase.JobService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lgr := logger.Nop()
	mc := cache.NewMemoryCache()
	q := queue.NewLocalQueue(lgr, &queue.QueueConfig{Workers: 1, QueueSize: 4})
	store := repository.NewMemoryVintageStore()

	recipes := usecase.NewRecipeService(mc, nil, time.Minute, lgr)
	vintage := usecase.NewVintageService(store, nil, lgr)
	jobs := usecase.NewJobService(q, mc, usecase.NewHub(), nil, nil, usecase.JobServiceConfig{}, nil, lgr)
	require.NoError(t, q.Start())
	t.Cleanup(func() {
		_ = q.Stop(context.Background())
		mc.Close()
	})

	router := NewRouter(
		NewRecipesHandler(lgr, recipes),
		NewVintageHandler(lgr, vintage),
		NewJobsHandler(lgr, jobs),
		NewReadyHandler(map[string]HealthChecker{"store": store}),
	)
	return &fixture{server: xhttp.NewServer(router, lgr, xhttp.WithMetricsPath("")), jobs: jobs}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	rec, _ := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"store":"ok"}`, string(env.Data))
}

func TestRecipeEndpoints(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		check  func(t *testing.T, data json.RawMessage)
	}{
		{
			name:   "present value",
			path:   "/api/bonds/present-value",
			body:   `{"flow":121,"n":2,"spot":0.1}`,
			status: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				var v float64
				require.NoError(t, json.Unmarshal(data, &v))
				assert.InDelta(t, 100.0, v, 1e-9)
			},
		},
		{
			name:   "halflife infinite is null",
			path:   "/api/risk/halflife",
			body:   `{"alpha":1}`,
			status: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				assert.Equal(t, "null", string(data))
			},
		},
		{
			name:   "halflife of zero alpha",
			path:   "/api/risk/halflife",
			body:   `{"alpha":0}`,
			status: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				assert.Equal(t, "0", string(data))
			},
		},
		{
			name:   "outliers with nulls",
			path:   "/api/filters/outliers",
			body:   `{"panel":{"data":[[1],[2],[3],[null],[100]]},"method":"tukey"}`,
			status: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				var out struct {
					Panel struct {
						Data [][]*float64 `json:"data"`
					} `json:"panel"`
				}
				require.NoError(t, json.Unmarshal(data, &out))
				assert.Nil(t, out.Panel.Data[3][0])
				assert.Nil(t, out.Panel.Data[4][0])
				require.NotNil(t, out.Panel.Data[0][0])
				assert.Equal(t, 1.0, *out.Panel.Data[0][0])
			},
		},
		{
			name:   "kupiec defaults level",
			path:   "/api/risk/kupiec",
			body:   `{"s":5,"n":100}`,
			status: http.StatusOK,
			check: func(t *testing.T, data json.RawMessage) {
				var out struct {
					PValue float64 `json:"pvalue"`
				}
				require.NoError(t, json.Unmarshal(data, &out))
				assert.InDelta(t, 1.0, out.PValue, 1e-12)
			},
		},
		{
			name:   "missing panel",
			path:   "/api/factors/em",
			body:   `{"kmax":2}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "bad json",
			path:   "/api/econ/adf",
			body:   `{"x":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "ragged panel is unprocessable",
			path:   "/api/factors/mrsq",
			body:   `{"panel":{"data":[[1,2],[3]]}}`,
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "unknown outlier method",
			path:   "/api/filters/outliers",
			body:   `{"panel":{"data":[[1],[2]]},"method":"sideways"}`,
			status: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, env.Data)
			}
		})
	}
}

const observationsBody = `{"observations":[
	{"date":"2020-01-01","realtime_start":"2020-02-01","realtime_end":"2020-02-29","value":"1.0"},
	{"date":"2020-01-01","realtime_start":"2020-03-01","realtime_end":"9999-12-31","value":"1.1"},
	{"date":"2020-02-01","realtime_start":"2020-03-01","realtime_end":"9999-12-31","value":"2.0"}
]}`

func TestVintageEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPut, "/api/vintage/observations/GDP", observationsBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"series_id":"GDP","rows":3}`, string(env.Data))

	rec, env = f.do(t, http.MethodPost, "/api/vintage/construct", `{"series_id":"GDP","release":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var points []struct {
		Date  int     `json:"date"`
		Value float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &points))
	require.Len(t, points, 2)
	assert.Equal(t, 1.0, points[0].Value)

	rec, env = f.do(t, http.MethodPost, "/api/vintage/transform", `{"series_id":"GDP","units":"chg"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"value":null`)

	rec, _ = f.do(t, http.MethodPost, "/api/vintage/construct", `{"series_id":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/vintage/construct", `{"freq":"M"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodDelete, "/api/vintage/observations/GDP", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/vintage/observations/GDP", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFactorsEMJob(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/api/jobs/factors-em",
		`{"panel":{"data":[[1,2,3],[2,4,6.1],[3,null,9],[4,8,12.2],[5,10,15]]},"kmax":1,"p":0}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var job usecase.Job
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, "/api/jobs/"+job.ID, rec.Header().Get(echo.HeaderLocation))

	require.Eventually(t, func() bool {
		got, err := f.jobs.Get(context.Background(), job.ID)
		return err == nil && got.Status.Done()
	}, 5*time.Second, 10*time.Millisecond)

	rec, env = f.do(t, http.MethodGet, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &job))
	assert.Equal(t, usecase.JobCompleted, job.Status)

	rec, _ = f.do(t, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressSocketSendsFinalState(t *testing.T) {
	f := newFixture(t)
	job, err := f.jobs.SubmitFactorsEM(context.Background(), mustJobRequest(t))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := f.jobs.Get(context.Background(), job.ID)
		return err == nil && got.Status.Done()
	}, 5*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(f.server.Echo())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/jobs/" + job.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev usecase.JobEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, job.ID, ev.JobID)
	assert.Equal(t, usecase.JobCompleted, ev.Status)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func mustJobRequest(t *testing.T) *models.FactorsEMJobRequest {
	t.Helper()
	var req models.FactorsEMJobRequest
	require.NoError(t, json.Unmarshal([]byte(
		`{"panel":{"data":[[1,2,3],[2,4,6.1],[3,null,9],[4,8,12.2],[5,10,15]]},"kmax":1,"p":0,"max_iter":50,"tol":1e-12}`), &req))
	return &req
}
