package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gemini-proxy-go/internal/config"
	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/redact"
)

// ErrShuttingDown is returned by Serve once Shutdown has been called.
var ErrShuttingDown = errors.New("relay is shutting down")

const shutdownReason = "server shutting down"

// Manager upgrades client requests and tracks the live relay sessions.
type Manager struct {
	wsURL    string
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a Manager dialing cfg.Upstream.WSURL.
func NewManager(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Manager {
	return newManager(cfg.Upstream.WSURL, Options{
		ConnectTimeout: time.Duration(cfg.Relay.ConnectTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(cfg.Relay.WriteTimeoutSeconds) * time.Second,
		CloseGrace:     time.Duration(cfg.Relay.CloseGraceSeconds) * time.Second,
		ReadLimit:      cfg.Relay.ReadLimitBytes,
	}, logger, m)
}

func newManager(wsURL string, opts Options, logger *slog.Logger, m *metrics.Metrics) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		wsURL: wsURL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from arbitrary origins, same as the REST surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.ConnectTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		opts:     opts,
		logger:   logger.With("component", "relay"),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// TargetURL returns the upstream WebSocket URL for an inbound request URL:
// the configured base, the path verbatim and the raw query when present.
func (m *Manager) TargetURL(u *url.URL) string {
	target := m.wsURL + u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

// Serve upgrades the request and relays until the session ends. When the
// upgrade fails the error response has already been written to w. Serve
// returns ErrShuttingDown without writing anything once Shutdown was called.
func (m *Manager) Serve(w http.ResponseWriter, r *http.Request) error {
	if m.shuttingDown() {
		return ErrShuttingDown
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	target := m.TargetURL(r.URL)
	id := uuid.NewString()
	logger := m.logger.With("session_id", id)
	s := newSession(m.ctx, id, target, conn, m.dialer, m.opts, logger, m.metrics)

	if !m.track(s) {
		// Shutdown began during the upgrade.
		s.Close(websocket.CloseGoingAway, shutdownReason)
		_ = conn.Close()
		return nil
	}
	defer m.untrack(s)

	logger.Info("relay session started", "path", r.URL.Path, "target", redact.String(target))
	start := time.Now()
	s.Run()
	logger.Info("relay session ended", "outcome", s.result(), "duration", time.Since(start))
	return nil
}

func (m *Manager) shuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closing
}

func (m *Manager) track(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.sessions[s.ID()] = s
	m.wg.Add(1)
	m.metrics.RelaySessionsActive.Inc()
	return true
}

func (m *Manager) untrack(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID())
	m.mu.Unlock()

	m.metrics.RelaySessionsActive.Dec()
	m.metrics.RelaySessionsTotal.WithLabelValues(s.result()).Inc()
	m.wg.Done()
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops accepting sessions, sends a going-away close to both sides
// of every live session and waits for them to finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	if len(live) > 0 {
		m.logger.Info("closing relay sessions", "count", len(live))
	}
	for _, s := range live {
		s.Close(websocket.CloseGoingAway, shutdownReason)
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range live {
			s.teardown()
		}
		return fmt.Errorf("relay shutdown: %w", ctx.Err())
	}
}
