// Package middleware provides Echo middleware for logging, metrics and CORS.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/redact"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// The request URI is redacted because callers pass API keys in the query.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			logger.Info("request",
				"method", req.Method,
				"uri", redact.String(req.URL.RequestURI()),
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}
