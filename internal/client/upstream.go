// Package client provides the upstream HTTP client for the Gemini API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/model"
	"gemini-proxy-go/internal/redact"
)

// UpstreamClient sends requests to the upstream generative-language API.
type UpstreamClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// Do executes fr against the upstream and reads the response body to completion.
// The provided context controls the lifetime of the upstream request: when the
// inbound client disconnects the upstream call is canceled too.
func (c *UpstreamClient) Do(ctx context.Context, fr *model.ForwardRequest) (*model.ForwardResponse, error) {
	var body io.Reader
	if fr.Body != nil {
		body = bytes.NewReader(fr.Body)
	}
	req, err := http.NewRequestWithContext(ctx, fr.Method, fr.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if fr.Header != nil {
		req.Header = fr.Header
	}

	c.logger.Debug("upstream request",
		"mode", fr.Mode,
		"method", fr.Method,
		"url", redact.String(fr.URL),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(fr.Mode, "", start)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(fr.Mode, "", start)
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	c.observe(fr.Mode, strconv.Itoa(resp.StatusCode), start)

	c.logger.Debug("upstream response",
		"mode", fr.Mode,
		"status", resp.StatusCode,
		"bytes", len(data),
	)

	return &model.ForwardResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// observe records latency and, when status is non-empty, the response count.
func (c *UpstreamClient) observe(mode, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if status != "" {
		c.metrics.UpstreamResponses.WithLabelValues(mode, status).Inc()
	}
}
