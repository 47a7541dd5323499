package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_GathersMetrics(t *testing.T) {
	m := New()

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	// Should include at least Go runtime and process collectors.
	if len(families) == 0 {
		t.Fatal("expected non-empty metric families from Gather()")
	}

	m.RequestsTotal.WithLabelValues("GET", "200", "/healthz").Inc()
	m.RelayMessages.WithLabelValues(DirectionClientToUpstream).Inc()

	families, err = m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{}
	for _, name := range []string{
		"gemini_proxy_http_requests_total",
		"gemini_proxy_relay_messages_total",
		"gemini_proxy_relay_sessions_active",
		"gemini_proxy_relay_messages_queued_total",
		"gemini_proxy_http_requests_in_flight",
	} {
		want[name] = false
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s in gathered metrics", name)
		}
	}
}

func TestRelayCounters(t *testing.T) {
	m := New()

	m.RelayQueued.Add(3)
	m.RelaySessionsActive.Inc()
	m.RelayDropped.WithLabelValues(DirectionUpstreamToClient).Inc()

	if got := testutil.ToFloat64(m.RelayQueued); got != 3 {
		t.Errorf("RelayQueued = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.RelaySessionsActive); got != 1 {
		t.Errorf("RelaySessionsActive = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RelayDropped.WithLabelValues(DirectionUpstreamToClient)); got != 1 {
		t.Errorf("RelayDropped = %v, want 1", got)
	}
}

func TestNormalizeMethod(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"GET", "GET"},
		{"POST", "POST"},
		{"PUT", "PUT"},
		{"DELETE", "DELETE"},
		{"PATCH", "PATCH"},
		{"HEAD", "HEAD"},
		{"OPTIONS", "OPTIONS"},
		{"FOOBAR", "other"},
		{"get", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got := NormalizeMethod(tt.method)
			if got != tt.want {
				t.Errorf("NormalizeMethod(%q) = %q, want %q", tt.method, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/proxy/status", "/proxy/status"},
		{"/metrics", "/metrics"},
		{"/v1beta/openai/chat/completions", "/chat/completions"},
		{"/openai/embeddings", "/embeddings"},
		{"/v1beta/models", "/models"},
		{"/v1beta/models/gemini-pro:generateContent", ":generateContent"},
		{"/v1beta/models/gemini-pro:streamGenerateContent", "other"},
		{"/gemini", "other"},
		{"/", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := NormalizePath(tt.path)
			if got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
