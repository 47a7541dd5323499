package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/redact"
	"gemini-proxy-go/internal/service"
)

// ProxyHandler serves the REST forwarding modes.
type ProxyHandler struct {
	forwarder *service.Forwarder
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(f *service.Forwarder, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: f,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// OpenAI forwards an OpenAI-compatible call.
func (h *ProxyHandler) OpenAI(c echo.Context) error {
	return h.forward(c, h.forwarder.OpenAI())
}

// Native forwards a native generateContent call.
func (h *ProxyHandler) Native(c echo.Context) error {
	return h.forward(c, h.forwarder.Native())
}

// Fusion forwards a fusion call whose key and model travel in the body.
func (h *ProxyHandler) Fusion(c echo.Context) error {
	return h.forward(c, h.forwarder.Fusion())
}

func (h *ProxyHandler) forward(c echo.Context, mode service.Mode) error {
	req := c.Request()

	resp, err := h.forwarder.Forward(req.Context(), mode, req)
	if err != nil {
		return h.mapError(c, mode, err)
	}

	header := c.Response().Header()
	for key, vals := range resp.Header {
		header[key] = vals
	}
	c.Response().WriteHeader(resp.StatusCode)

	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing response body",
			"err", err,
			"mode", mode.Name(),
			"path", req.URL.Path,
		)
	}
	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, mode service.Mode, err error) error {
	var pe *service.ProxyError
	if errors.As(err, &pe) {
		level := slog.LevelWarn
		if pe.Kind == service.KindUpstreamUnreachable || pe.Status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(c.Request().Context(), level, "proxy error",
			"kind", pe.Kind.String(),
			"mode", mode.Name(),
			"status", pe.Status,
			"err", redact.Error(pe.Err),
			"path", c.Request().URL.Path,
		)

		header := c.Response().Header()
		for key, vals := range pe.Header {
			header[key] = vals
		}
		return c.JSON(pe.Status, pe.Body)
	}

	// Body limit and similar middleware failures keep their status.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	h.logger.Error("proxy error",
		"mode", mode.Name(),
		"err", redact.Error(err),
		"path", c.Request().URL.Path,
	)
	return c.JSON(http.StatusInternalServerError, service.ErrorBody{
		Error: "Internal server error",
	})
}
