package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	applogger "OVIP/pkg/logger"
)

// RequestLogging logs each request at info, or warn when it failed.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// let the error handler settle the status before logging
				c.Error(err)
			}

			req := c.Request()
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", req.RequestURI),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency", time.Since(start)),
			}
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				fields = append(fields, applogger.String("request_id", id))
			}
			if c.Response().Status >= 400 {
				l.Warn("http request", fields...)
			} else {
				l.Info("http request", fields...)
			}
			return nil
		}
	}
}
