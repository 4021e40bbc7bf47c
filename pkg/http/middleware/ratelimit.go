package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Allower decides whether a request from key may proceed.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects requests with 429 once the client's budget is spent.
// Clients are keyed by X-API-Key when present, else by real IP. Paths with
// one of the skip prefixes are never limited.
func RateLimit(a Allower, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, p := range skip {
				if strings.HasPrefix(path, p) {
					return next(c)
				}
			}

			key := c.Request().Header.Get("X-API-Key")
			if key == "" {
				key = c.RealIP()
			}
			if !a.Allow(key) {
				c.Response().Header().Set("Retry-After", "1")
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
