package http

import (
	"time"

	"github.com/labstack/echo/v4"

	xutil "TradeMind/pkg/util"
)

// QueryInt reads an integer query parameter, falling back to def.
func QueryInt(c echo.Context, name string, def int) int {
	return xutil.ParseIntDefault(c.QueryParam(name), def)
}

// QueryTime reads a zone-qualified timestamp query parameter, falling back to def.
func QueryTime(c echo.Context, name string, def time.Time) time.Time {
	return xutil.ParseTimeDefault(c.QueryParam(name), def)
}
