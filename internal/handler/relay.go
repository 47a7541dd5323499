package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/redact"
	"gemini-proxy-go/internal/relay"
)

// RelayHandler upgrades WebSocket requests and runs a relay session.
type RelayHandler struct {
	manager *relay.Manager
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler.
func NewRelayHandler(m *relay.Manager, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		manager: m,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle blocks for the lifetime of the session.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	err := h.manager.Serve(c.Response(), req)
	if errors.Is(err, relay.ErrShuttingDown) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"error": "server shutting down",
		})
	}
	if err != nil {
		// The upgrader has already written the HTTP error response.
		h.logger.Warn("websocket upgrade failed",
			"err", redact.Error(err),
			"path", req.URL.Path,
		)
		return nil
	}

	// The connection was hijacked; record the switch for logs and metrics.
	c.Response().Status = http.StatusSwitchingProtocols
	return nil
}
