package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinDS/internal/domain/models"
	"FinDS/internal/usecase"
	xhttp "FinDS/pkg/http"
	xlogger "FinDS/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsPollPeriod = 2 * time.Second
)

// JobsHandler submits background jobs and reports their progress, by
// polling or over a websocket.
type JobsHandler struct {
	logger   *xlogger.Logger
	jobs     *usecase.JobService
	upgrader websocket.Upgrader
	// poll rereads the job store so a final state whose event was lost
	// still ends the stream
	poll time.Duration
}

func NewJobsHandler(logger *xlogger.Logger, jobs *usecase.JobService) *JobsHandler {
	return &JobsHandler{
		logger: logger,
		jobs:   jobs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		poll: wsPollPeriod,
	}
}

func (h *JobsHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/jobs/factors-em", h.SubmitFactorsEM)
	e.GET("/api/jobs/:id", h.Get)
	e.GET("/api/ws/jobs/:id", h.Progress)
}

func (h *JobsHandler) SubmitFactorsEM(c echo.Context) error {
	req := &models.FactorsEMJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	job, err := h.jobs.SubmitFactorsEM(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("submit job", xlogger.Error(err))
		return errorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/api/jobs/"+job.ID)
	return xhttp.AcceptedResponse(c, job)
}

func (h *JobsHandler) Get(c echo.Context) error {
	job, err := h.jobs.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, job)
}

// Progress streams JobEvents of one job as JSON text frames. The current
// state is sent first; the socket closes once the job is done.
func (h *JobsHandler) Progress(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	job, events, cancel, err := h.jobs.Watch(ctx, id)
	if err != nil {
		return errorResponse(c, err)
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", xlogger.String("job_id", id), xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		// drain control frames; a read error means the client left
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, job.Event()); err != nil || job.Status.Done() {
		h.closeNormal(conn)
		return nil
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	poll := time.NewTicker(h.poll)
	defer poll.Stop()
	for {
		var ev usecase.JobEvent
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			ev = e
		case <-poll.C:
			cur, err := h.jobs.Get(ctx, id)
			if err != nil || !cur.Status.Done() {
				continue
			}
			ev = cur.Event()
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
			continue
		case <-closed:
			return nil
		case <-ctx.Done():
			return nil
		}

		if err := h.write(conn, ev); err != nil {
			if !errors.Is(err, websocket.ErrCloseSent) {
				h.logger.Debug("websocket write", xlogger.String("job_id", id), xlogger.Error(err))
			}
			return nil
		}
		if ev.Status.Done() {
			h.closeNormal(conn)
			return nil
		}
	}
}

func (h *JobsHandler) write(conn *websocket.Conn, ev usecase.JobEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}

func (h *JobsHandler) closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
