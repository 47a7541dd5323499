package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// SessionCounter reports the number of live relay sessions.
type SessionCounter interface {
	Active() int
}

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg      *config.Config
	version  Version
	sessions SessionCounter
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v, sessions: sessions}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UpstreamURL    string `json:"upstream_url"`
	UpstreamWSURL  string `json:"upstream_ws_url"`
	FusionPath     string `json:"fusion_path"`
	ActiveSessions int    `json:"active_sessions"`
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, statusResponse{
		Status:         "ok",
		Version:        string(h.version),
		UpstreamURL:    h.cfg.Upstream.BaseURL,
		UpstreamWSURL:  h.cfg.Upstream.WSURL,
		FusionPath:     h.cfg.Fusion.Path,
		ActiveSessions: h.sessions.Active(),
	})
}
