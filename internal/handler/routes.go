package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/middleware"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Static
// operational routes win over the catch-all that feeds the Router.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, router *Router, health *HealthHandler) {
	e.GET("/healthz", health.Healthz, middleware.SecurityHeaders())
	e.GET("/proxy/status", health.Status, middleware.SecurityHeaders())

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", router.Dispatch)
}
