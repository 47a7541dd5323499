package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/model"
)

// Preflight answers OPTIONS requests on any path with 204 and the CORS header
// set. It must run before routing so that no handler is reached.
func Preflight() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodOptions {
				return next(c)
			}
			model.ApplyCORS(c.Response().Header())
			return c.NoContent(http.StatusNoContent)
		}
	}
}

// SecurityHeaders sets the CORS and browser-hardening header set on the
// response before the handler runs.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			model.ApplyCORS(c.Response().Header())
			return next(c)
		}
	}
}
