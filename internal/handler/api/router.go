package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "FinDS/pkg/http"
)

// Router registers a set of handlers as one.
type Router struct {
	handlers []xhttp.Handler
}

func NewRouter(handlers ...xhttp.Handler) *Router {
	return &Router{handlers: handlers}
}

func (r *Router) RegisterRoutes(e *echo.Echo) {
	for _, h := range r.handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ReadyHandler serves /readyz by checking each named dependency.
type ReadyHandler struct {
	checks  map[string]HealthChecker
	timeout time.Duration
}

func NewReadyHandler(checks map[string]HealthChecker) *ReadyHandler {
	return &ReadyHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *ReadyHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/readyz", h.Ready)
}

func (h *ReadyHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check.Health(ctx); err != nil {
			status[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "ok"
	}
	return xhttp.DataResponse(c, code, status)
}

// HealthFunc adapts a plain function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }
