// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for API latency. Generation calls run long, so
// the tail reaches two minutes.
var defaultBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}

// Relay message directions.
const (
	DirectionClientToUpstream = "client_to_upstream"
	DirectionUpstreamToClient = "upstream_to_client"
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	RelaySessionsActive prometheus.Gauge
	RelaySessionsTotal  *prometheus.CounterVec
	RelayMessages       *prometheus.CounterVec
	RelayQueued         prometheus.Counter
	RelayDropped        *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "route"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gemini_proxy_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "route"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemini_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gemini_proxy_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"mode"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_upstream_responses_total",
			Help: "Total upstream responses by forwarding mode and status code.",
		}, []string{"mode", "status_code"}),

		RelaySessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gemini_proxy_relay_sessions_active",
			Help: "Number of WebSocket relay sessions currently open.",
		}),

		RelaySessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_relay_sessions_total",
			Help: "Total finished WebSocket relay sessions by outcome.",
		}, []string{"outcome"}),

		RelayMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_relay_messages_total",
			Help: "Total WebSocket messages forwarded by direction.",
		}, []string{"direction"}),

		RelayQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gemini_proxy_relay_messages_queued_total",
			Help: "Client messages buffered while the upstream connection was being established.",
		}),

		RelayDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_proxy_relay_messages_dropped_total",
			Help: "WebSocket messages dropped because the destination was not open.",
		}, []string{"direction"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.RelaySessionsActive,
		m.RelaySessionsTotal,
		m.RelayMessages,
		m.RelayQueued,
		m.RelayDropped,
	)

	return m
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists operational routes reported under their own label.
var knownPrefixes = []string{"/healthz", "/proxy/status", "/metrics"}

// knownSuffixes lists OpenAI-compatible endpoints reported by suffix.
var knownSuffixes = []string{"/chat/completions", "/embeddings", "/models"}

// NormalizePath returns a bounded path label for Prometheus metrics.
// Model names and API versions vary per request, so generation paths collapse
// to the endpoint they address.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return prefix
		}
	}
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(path, suffix) {
			return suffix
		}
	}
	if strings.Contains(path, ":generateContent") {
		return ":generateContent"
	}
	return "other"
}
