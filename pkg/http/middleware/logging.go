package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"TradeMind/pkg/logger"
)

// RequestLogging writes one debug record per request.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			req := c.Request()
			log.Debug("http request",
				logger.String("method", req.Method),
				logger.String("route", routeLabel(c)),
				logger.String("remote", c.RealIP()),
				logger.Int("status", c.Response().Status),
				logger.Duration("duration_ms", time.Since(start)),
			)
			return err
		}
	}
}
