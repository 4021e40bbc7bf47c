package http

import (
	"strings"

	"github.com/labstack/echo/v4"

	xutil "FinDS/pkg/util"
)

// QueryInt reads an integer query parameter, falling back to def.
func QueryInt(c echo.Context, name string, def int) int {
	return xutil.ParseIntDefault(c.QueryParam(name), def)
}

// QueryDate reads a date query parameter ("2020-01-31", "20200131" or any
// layout util.ParseDate accepts) as YYYYMMDD. Missing or invalid gives def.
func QueryDate(c echo.Context, name string, def int) int {
	v := strings.TrimSpace(c.QueryParam(name))
	if v == "" {
		return def
	}
	if len(v) == 8 {
		if d := xutil.ParseIntDefault(v, 0); d > 0 {
			return d
		}
	}
	t, ok := xutil.ParseDate(v)
	if !ok {
		return def
	}
	return xutil.TimeToInt(t)
}
