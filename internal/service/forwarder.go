// Package service implements the REST forwarding logic.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"gemini-proxy-go/internal/client"
	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/model"
	"gemini-proxy-go/internal/redact"
)

// upstream is the slice of client.UpstreamClient the forwarder depends on.
type upstream interface {
	Do(ctx context.Context, fr *model.ForwardRequest) (*model.ForwardResponse, error)
}

// Forwarder translates one inbound REST call into one upstream call using a
// forwarding Mode.
type Forwarder struct {
	client upstream
	logger *slog.Logger

	openAI Mode
	native Mode
	fusion Mode
}

// NewForwarder creates a Forwarder targeting cfg.Upstream.BaseURL.
func NewForwarder(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *Forwarder {
	return newForwarder(c, cfg.Upstream.BaseURL, logger)
}

func newForwarder(c upstream, baseURL string, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		client: c,
		logger: logger.With("component", "forwarder"),
		openAI: &openAIMode{baseURL: baseURL},
		native: &nativeMode{baseURL: baseURL},
		fusion: &fusionMode{baseURL: baseURL},
	}
}

// OpenAI returns the OpenAI-compatibility mode.
func (f *Forwarder) OpenAI() Mode { return f.openAI }

// Native returns the native generateContent mode.
func (f *Forwarder) Native() Mode { return f.native }

// Fusion returns the body-keyed fusion mode.
func (f *Forwarder) Fusion() Mode { return f.fusion }

// Forward reads the inbound body, builds the upstream call with mode, executes
// it and maps the response headers. Upstream non-2xx responses are returned as
// responses, not errors. Mode failures are returned as *ProxyError; a failure
// to read the inbound body is returned wrapped as-is.
func (f *Forwarder) Forward(ctx context.Context, mode Mode, r *http.Request) (*model.ForwardResponse, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	fr, err := mode.Build(r, body)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("forwarding request",
		"mode", mode.Name(),
		"method", fr.Method,
		"url", redact.String(fr.URL),
	)

	resp, err := f.client.Do(ctx, fr)
	if err != nil {
		return nil, mode.Unreachable(fmt.Errorf("forward %s: %w", mode.Name(), err))
	}

	resp.Header = mode.ResponseHeader(resp.Header)
	return resp, nil
}
