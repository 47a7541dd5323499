// Package relay bridges client WebSocket connections to the upstream Live API.
//
// Each Session owns one client connection and one upstream connection. The
// upstream leg is dialed after the client upgrade completes; client messages
// arriving in between are queued and flushed in arrival order once the
// upstream is open. Afterwards messages are pumped verbatim in both
// directions and a close on either side is propagated to the other.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"gemini-proxy-go/internal/metrics"
	"gemini-proxy-go/internal/redact"
)

// State is the upstream connection state of a Session.
type State int

// Upstream connection states.
const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session outcomes reported to metrics.
const (
	outcomeCompleted     = "completed"
	outcomeConnectFailed = "connect_failed"
)

// maxCloseReason is the longest close reason that fits a control frame.
const maxCloseReason = 123

// reasonUpstreamUnavailable is sent to the client when the upstream dial fails.
const reasonUpstreamUnavailable = "upstream unavailable"

// Options tune a Session.
type Options struct {
	// ConnectTimeout bounds the upstream handshake. Zero means no timeout.
	ConnectTimeout time.Duration
	// WriteTimeout bounds each frame write. Zero means no deadline.
	WriteTimeout time.Duration
	// CloseGrace is how long to wait for the peer's close reply after a
	// close frame has been sent.
	CloseGrace time.Duration
	// ReadLimit caps the size of a single message on either side.
	ReadLimit int64
}

type message struct {
	kind int
	data []byte
}

// Session is one client-to-upstream relay.
type Session struct {
	id      string
	target  string
	client  *websocket.Conn
	dialer  *websocket.Dialer
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	// clientOpen and clientCloseSent are checked by the upstream pump without
	// taking mu, so delivery to the client never waits on an upstream write.
	clientOpen      atomic.Bool
	clientCloseSent atomic.Bool

	// mu guards every field below and serializes data writes to upstream.
	mu          sync.Mutex
	state       State
	pending     []message
	upstream    *websocket.Conn
	closeCode   int
	closeReason string
	graceTimers []*time.Timer
	outcome     string
}

func newSession(ctx context.Context, id, target string, client *websocket.Conn, dialer *websocket.Dialer,
	opts Options, logger *slog.Logger, m *metrics.Metrics,
) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:        id,
		target:    target,
		client:    client,
		dialer:    dialer,
		opts:      opts,
		logger:    logger,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		state:     StateConnecting,
		closeCode: websocket.CloseNormalClosure,
		outcome:   outcomeCompleted,
	}
	s.clientOpen.Store(true)
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current upstream state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run relays until both sides have closed, then releases both connections.
func (s *Session) Run() {
	defer s.cancel()
	if s.opts.ReadLimit > 0 {
		s.client.SetReadLimit(s.opts.ReadLimit)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runUpstream()
	}()

	s.readClient()
	<-done
	s.teardown()
}

// Close closes both sides with code and reason. A pending dial is aborted.
func (s *Session) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnecting:
		s.closeCode, s.closeReason = code, reason
		s.cancel()
	case StateOpen:
		s.sendClose(s.upstream, code, reason)
	}
	s.state = StateClosed
	s.pending = nil
	s.closeClient(code, reason)
}

// runUpstream dials the upstream, flushes the pending queue and then pumps
// upstream messages to the client.
func (s *Session) runUpstream() {
	dialCtx := s.ctx
	if s.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(s.ctx, s.opts.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := s.dialer.DialContext(dialCtx, s.target, nil)
	if err != nil {
		s.connectFailed(err, resp)
		return
	}
	if s.opts.ReadLimit > 0 {
		conn.SetReadLimit(s.opts.ReadLimit)
	}

	if !s.open(conn) {
		return
	}
	s.readUpstream(conn)
}

func (s *Session) connectFailed(err error, resp *http.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		// The client left or the session was closed while dialing.
		s.logger.Debug("upstream dial abandoned", "err", redact.Error(err))
		return
	}

	attrs := []any{"err", redact.Error(err), "target", redact.String(s.target)}
	if resp != nil {
		attrs = append(attrs, "status", resp.StatusCode)
	}
	s.logger.Error("upstream connect failed", attrs...)

	s.state = StateClosed
	s.pending = nil
	s.outcome = outcomeConnectFailed
	s.closeClient(websocket.CloseInternalServerErr, reasonUpstreamUnavailable)
}

// open records the upstream connection and flushes the pending queue. It
// reports false when the session closed while the dial was in flight.
func (s *Session) open(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upstream = conn
	if s.state == StateClosed {
		s.sendClose(conn, s.closeCode, s.closeReason)
		return false
	}

	flushed := 0
	for _, m := range s.pending {
		if err := s.writeUpstream(m.kind, m.data); err != nil {
			s.logger.Warn("flush to upstream failed", "err", err, "flushed", flushed, "queued", len(s.pending))
			_ = conn.Close()
			break
		}
		flushed++
	}
	s.pending = nil
	s.state = StateOpen

	s.logger.Info("connected to upstream", "flushed", flushed)
	return true
}

func (s *Session) readUpstream(conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			s.upstreamClosed(err)
			return
		}

		if !s.clientOpen.Load() || s.clientCloseSent.Load() {
			s.metrics.RelayDropped.WithLabelValues(metrics.DirectionUpstreamToClient).Inc()
			continue
		}

		if s.opts.WriteTimeout > 0 {
			_ = s.client.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		}
		if err := s.client.WriteMessage(kind, data); err != nil {
			s.logger.Warn("write to client failed", "err", err)
			_ = s.client.Close()
			continue
		}
		s.metrics.RelayMessages.WithLabelValues(metrics.DirectionUpstreamToClient).Inc()
	}
}

func (s *Session) upstreamClosed(err error) {
	code, reason := closeStatus(err)
	s.logger.Info("upstream connection closed", "code", code, "reason", reason)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateClosed
	s.closeClient(peerCode(code), reason)
}

func (s *Session) readClient() {
	for {
		kind, data, err := s.client.ReadMessage()
		if err != nil {
			s.clientClosed(err)
			return
		}
		s.fromClient(kind, data)
	}
}

func (s *Session) fromClient(kind int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnecting:
		s.pending = append(s.pending, message{kind: kind, data: data})
		s.metrics.RelayQueued.Inc()
	case StateOpen:
		if err := s.writeUpstream(kind, data); err != nil {
			s.logger.Warn("write to upstream failed", "err", err)
			_ = s.upstream.Close()
		}
	default:
		s.metrics.RelayDropped.WithLabelValues(metrics.DirectionClientToUpstream).Inc()
	}
}

func (s *Session) clientClosed(err error) {
	code, reason := closeStatus(err)
	s.logger.Info("client connection closed", "code", code, "reason", reason)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientOpen.Store(false)
	switch s.state {
	case StateOpen:
		s.sendClose(s.upstream, websocket.CloseNormalClosure, reason)
	case StateConnecting:
		s.pending = nil
		s.closeCode, s.closeReason = websocket.CloseNormalClosure, reason
		s.cancel()
	}
	s.state = StateClosed
}

// writeUpstream sends one data frame upstream. Callers hold s.mu.
func (s *Session) writeUpstream(kind int, data []byte) error {
	if s.opts.WriteTimeout > 0 {
		_ = s.upstream.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if err := s.upstream.WriteMessage(kind, data); err != nil {
		return err
	}
	s.metrics.RelayMessages.WithLabelValues(metrics.DirectionClientToUpstream).Inc()
	return nil
}

// closeClient sends a close frame to the client once. Callers hold s.mu.
func (s *Session) closeClient(code int, reason string) {
	if !s.clientOpen.Load() || !s.clientCloseSent.CompareAndSwap(false, true) {
		return
	}
	s.sendClose(s.client, code, reason)
}

// sendClose writes a close frame and bounds the wait for the peer's reply.
// The connection is dropped if no reply arrives within CloseGrace; Close and
// WriteControl are the only Conn methods safe to call beside the reader.
// Callers hold s.mu.
func (s *Session) sendClose(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	if s.opts.WriteTimeout > 0 {
		deadline = time.Now().Add(s.opts.WriteTimeout)
	}
	msg := websocket.FormatCloseMessage(code, truncateReason(reason))
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug("write close frame failed", "err", err)
	}
	if s.opts.CloseGrace > 0 {
		s.graceTimers = append(s.graceTimers, time.AfterFunc(s.opts.CloseGrace, func() { _ = conn.Close() }))
	}
}

func (s *Session) teardown() {
	s.mu.Lock()
	s.state = StateClosed
	s.pending = nil
	up := s.upstream
	for _, t := range s.graceTimers {
		t.Stop()
	}
	s.graceTimers = nil
	s.mu.Unlock()

	if up != nil {
		_ = up.Close()
	}
	_ = s.client.Close()
}

func (s *Session) result() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// closeStatus extracts the close code and reason from a read error. Errors
// that are not close frames count as abnormal closure.
func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, ""
}

// peerCode maps a received close code to one that may be sent on the wire.
func peerCode(code int) int {
	switch {
	case code == websocket.CloseNoStatusReceived:
		return websocket.CloseNormalClosure
	case code >= 1000 && code <= 1003, code >= 1007 && code <= 1014, code >= 3000 && code <= 4999:
		return code
	default:
		return websocket.CloseInternalServerErr
	}
}

// truncateReason cuts reason to fit a close frame without splitting a rune.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}
