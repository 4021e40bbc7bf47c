package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// HTTPObserver records one served request.
type HTTPObserver interface {
	ObserveHTTP(route, method, status string, d time.Duration)
}

// Metrics reports every request to obs, labelled by route template.
func Metrics(obs HTTPObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			obs.ObserveHTTP(routeLabel(c), c.Request().Method, strconv.Itoa(c.Response().Status), time.Since(start))
			return nil
		}
	}
}
