package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"

	"gemini-proxy-go/internal/client"
	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(upstreamURL string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:         upstreamURL + "/v1beta",
			WSURL:           "ws" + strings.TrimPrefix(upstreamURL, "http"),
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Fusion:  config.FusionConfig{Path: config.DefaultFusionPath},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func newTestProxyHandler(cfg *config.Config) *ProxyHandler {
	logger := testLogger()
	f := service.NewForwarder(client.NewUpstreamClient(cfg, logger, nil), cfg, logger)
	return NewProxyHandler(f, logger)
}

func TestProxyHandler_OpenAI(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k1" {
			t.Errorf("key = %q, want %q", r.URL.Query().Get("key"), "k1")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer upstream.Close()

	h := newTestProxyHandler(testConfig(upstream.URL))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/openai/chat/completions?key=k1", strings.NewReader(`{"model":"gemini-pro"}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.OpenAI(c); err != nil {
		t.Fatalf("OpenAI() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != `{"choices":[]}` {
		t.Errorf("body = %q", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Headers") != "Content-Type, Authorization" {
		t.Error("expected CORS header set on OpenAI response")
	}
}

func TestProxyHandler_UpstreamErrorRelayed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer upstream.Close()

	h := newTestProxyHandler(testConfig(upstream.URL))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1beta/models/gemini-pro:generateContent", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer k1")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Native(c); err != nil {
		t.Fatalf("Native() error = %v", err)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want upstream status %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Body.String() != `{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}` {
		t.Errorf("body = %q, want upstream body", rec.Body.String())
	}
}

func TestProxyHandler_Rejections(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer upstream.Close()

	h := newTestProxyHandler(testConfig(upstream.URL))

	tests := []struct {
		name       string
		handle     func(echo.Context) error
		method     string
		target     string
		body       string
		authz      string
		wantStatus int
		wantError  string
	}{
		{
			name:       "openai without key",
			handle:     h.OpenAI,
			method:     http.MethodPost,
			target:     "/v1beta/openai/chat/completions",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "API key is required",
		},
		{
			name:       "native without authorization",
			handle:     h.Native,
			method:     http.MethodPost,
			target:     "/v1beta/models/gemini-pro:generateContent",
			body:       `{}`,
			wantStatus: http.StatusUnauthorized,
			wantError:  "Authorization header required",
		},
		{
			name:       "native with malformed authorization",
			handle:     h.Native,
			method:     http.MethodPost,
			target:     "/v1beta/models/gemini-pro:generateContent",
			body:       `{}`,
			authz:      "ABC123",
			wantStatus: http.StatusBadRequest,
			wantError:  "Malformed Authorization header",
		},
		{
			name:       "fusion without key",
			handle:     h.Fusion,
			method:     http.MethodPost,
			target:     "/gemini",
			body:       `{"model":"gemini-pro"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing required fields: model or key",
		},
		{
			name:       "fusion without model",
			handle:     h.Fusion,
			method:     http.MethodPost,
			target:     "/gemini",
			body:       `{"key":"XYZ"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing required fields: model or key",
		},
		{
			name:       "fusion with invalid JSON",
			handle:     h.Fusion,
			method:     http.MethodPost,
			target:     "/gemini",
			body:       `{"model":`,
			wantStatus: http.StatusInternalServerError,
			wantError:  "Error handling fusion request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := tt.handle(c); err != nil {
				t.Fatalf("handler error = %v", err)
			}

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %q, want %q", body["error"], tt.wantError)
			}
			if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("expected permissive origin on error response")
			}
		})
	}

	if n := hits.Load(); n != 0 {
		t.Errorf("upstream hits = %d, want 0", n)
	}
}

func TestProxyHandler_Unreachable(t *testing.T) {
	h := newTestProxyHandler(testConfig("http://127.0.0.1:1"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/gemini", strings.NewReader(`{"model":"gemini-pro","key":"SECRET"}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Fusion(c); err != nil {
		t.Fatalf("Fusion() error = %v", err)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["error"] != "Error handling fusion request" {
		t.Errorf("error = %q", body["error"])
	}
	if body["details"] == "" {
		t.Error("expected details on fusion failure")
	}
	if strings.Contains(body["details"], "SECRET") {
		t.Errorf("details leak the API key: %q", body["details"])
	}
}
