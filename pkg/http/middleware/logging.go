package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "FinDS/pkg/logger"
)

// RequestLogging logs each request at debug level, slow requests at warn
// and 5xx responses at error.
func RequestLogging(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			latency := time.Since(start)
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", routeLabel(c)),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", res.Status),
				applogger.Int64("bytes", res.Size),
				applogger.Duration("latency_ms", latency),
			}

			switch {
			case res.Status >= 500:
				l.Error("http request failed", append(fields, applogger.Error(err))...)
			case slow > 0 && latency >= slow:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}

// routeLabel is the registered route template, which keeps metric label
// cardinality low.
func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}
