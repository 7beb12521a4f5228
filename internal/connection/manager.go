package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rickgao/salon-queue/internal/auth"
	"github.com/rickgao/salon-queue/internal/metrics"
	"github.com/rickgao/salon-queue/internal/router"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClientFactory replaces the gorilla/websocket transport.
func WithClientFactory(f ClientFactory) ManagerOption {
	return func(m *Manager) {
		m.newClient = f
	}
}

// WithTokenSource sets the bearer token used on the handshake.
func WithTokenSource(ts auth.TokenSource) ManagerOption {
	return func(m *Manager) {
		m.tokens = ts
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Status       Status
	FailureCount int
	InFallback   bool
	Topics       []string
	Router       router.Stats
}

// session is one live transport plus the goroutine reading it.
type session struct {
	gen    uint64
	client Client
	stop   chan struct{}
}

// Manager owns the live channel and its status machine.
//
// All exported methods are safe for concurrent use and never block on the
// network except Subscribe/Unsubscribe, which write one command frame bounded
// by WriteTimeout.
type Manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	tokens    auth.TokenSource
	newClient ClientFactory
	router    *router.Router

	// sendMu orders command frames; never taken while holding mu.
	sendMu sync.Mutex

	mu         sync.Mutex
	status     Status
	failures   int
	fallback   bool
	closed     bool
	gen        uint64 // Bumped whenever in-flight work must be invalidated
	sess       *session
	cancelDial context.CancelFunc
	retry      *time.Timer
	cmdID      int64
	watchers   map[chan Status]struct{}

	wg sync.WaitGroup
}

// NewManager creates a new Connection Manager in the disconnected state.
func NewManager(cfg ManagerConfig, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		cfg.ReconnectMaxDelay = cfg.ReconnectBaseDelay
	}

	m := &Manager{
		cfg:       cfg,
		logger:    logger.With("component", "connection"),
		newClient: NewClient,
		status:    StatusDisconnected,
		watchers:  make(map[chan Status]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.router = router.New(m.logger)
	metrics.SetConnectionStatus(string(StatusDisconnected))
	return m
}

// Connect starts a connection attempt. It is a no-op while connected or
// connecting, and while the fallback flag is set. A pending backoff timer is
// cancelled and the attempt starts now.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.fallback {
		return
	}
	switch m.status {
	case StatusConnected, StatusConnecting:
		return
	}

	m.stopRetryLocked()
	m.dialLocked()
}

// Disconnect tears the connection down without counting a failure.
// The fallback flag is left as it is.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	old := m.teardownLocked()
	if m.status != StatusDisconnected {
		m.setStatusLocked(StatusDisconnected, "manual disconnect")
	}
	m.mu.Unlock()

	closeSession(old)
}

// ResetFallback clears the fallback flag and the failure count, then connects.
func (m *Manager) ResetFallback() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	wasFallback := m.fallback
	m.fallback = false
	m.failures = 0
	old := m.teardownLocked()
	m.setStatusLocked(StatusDisconnected, "fallback reset")
	m.dialLocked()
	m.mu.Unlock()

	closeSession(old)
	m.logger.Info("fallback reset", "was_fallback", wasFallback)
}

// Subscribe registers handler for topic. Requires the connected status. The
// subscribe command is sent the first time a topic gains a handler.
func (m *Manager) Subscribe(topic string, handler router.Handler) (router.Handle, error) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return router.NilHandle, ErrClosed
	}
	if m.status != StatusConnected || m.sess == nil {
		m.mu.Unlock()
		return router.NilHandle, ErrNotConnected
	}

	h, first := m.router.Add(topic, handler)
	var out *outgoing
	if first {
		out = m.commandLocked(CmdSubscribe, topic)
	}
	m.mu.Unlock()

	m.send(out)
	if m.cfg.Debug {
		m.logger.Debug("subscribed", "topic", topic, "handle", h.String(), "first", first)
	}
	return h, nil
}

// Unsubscribe releases h. It returns false if h was unknown, which includes
// handles dropped when the connection went down.
func (m *Manager) Unsubscribe(h router.Handle) bool {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.mu.Lock()
	topic, last, ok := m.router.Remove(h)
	if !ok {
		m.mu.Unlock()
		return false
	}
	var out *outgoing
	if last && m.status == StatusConnected && m.sess != nil {
		out = m.commandLocked(CmdUnsubscribe, topic)
	}
	m.mu.Unlock()

	m.send(out)
	if m.cfg.Debug {
		m.logger.Debug("unsubscribed", "topic", topic, "handle", h.String(), "last", last)
	}
	return true
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// FailureCount returns consecutive failures since the last success or reset.
func (m *Manager) FailureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// InFallback reports whether the reconnect limit was reached.
func (m *Manager) InFallback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallback
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	s := ManagerStats{
		Status:       m.status,
		FailureCount: m.failures,
		InFallback:   m.fallback,
	}
	m.mu.Unlock()

	s.Topics = m.router.Topics()
	s.Router = m.router.Stats()
	return s
}

// Watch returns a channel that always holds the latest status. The current
// status is delivered immediately. Slow readers only miss intermediate values.
func (m *Manager) Watch() <-chan Status {
	ch := make(chan Status, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(ch)
		return ch
	}
	ch <- m.status
	m.watchers[ch] = struct{}{}
	return ch
}

// Unwatch stops delivery to ch and closes it.
func (m *Manager) Unwatch(ch <-chan Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for w := range m.watchers {
		if w == ch {
			delete(m.watchers, w)
			close(w)
			return
		}
	}
}

// Close disconnects, closes every watcher and waits for background goroutines.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	old := m.teardownLocked()
	m.setStatusLocked(StatusDisconnected, "closed")
	m.closed = true
	for w := range m.watchers {
		close(w)
	}
	m.watchers = nil
	m.mu.Unlock()

	closeSession(old)
	m.wg.Wait()
	return nil
}

// dialLocked starts a new attempt. Caller holds m.mu.
func (m *Manager) dialLocked() {
	m.gen++
	gen := m.gen
	m.setStatusLocked(StatusConnecting, "dial")

	header := http.Header{}
	if bearer := auth.BearerHeader(m.tokens); bearer != "" {
		header.Set("Authorization", bearer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	c := m.newClient(m.cfg.clientConfig(header), m.logger)

	m.wg.Add(1)
	go m.dial(ctx, gen, c)
}

func (m *Manager) dial(ctx context.Context, gen uint64, c Client) {
	defer m.wg.Done()

	err := c.Connect(ctx)

	m.mu.Lock()
	if gen != m.gen || m.closed {
		// Superseded by Disconnect, ResetFallback or a newer attempt.
		m.mu.Unlock()
		c.Close()
		return
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}

	if err != nil {
		m.failLocked(err)
		m.mu.Unlock()
		c.Close()
		return
	}

	s := &session{gen: gen, client: c, stop: make(chan struct{})}
	m.sess = s
	m.failures = 0
	m.setStatusLocked(StatusConnected, "handshake ok")
	m.wg.Add(1)
	go m.readLoop(s)
	m.mu.Unlock()
}

// readLoop routes frames until the transport fails or the session is stopped.
func (m *Manager) readLoop(s *session) {
	defer m.wg.Done()

	for {
		select {
		case <-s.stop:
			return

		case err := <-s.client.Errors():
			m.connectionLost(s, err)
			return

		case msg, ok := <-s.client.Messages():
			if !ok {
				m.connectionLost(s, ErrNotConnected)
				return
			}
			m.route(s, msg)
		}
	}
}

func (m *Manager) route(s *session, msg TimestampedMessage) {
	m.mu.Lock()
	current := m.sess == s
	m.mu.Unlock()
	if !current {
		return
	}

	err := m.router.Dispatch(msg.Data)
	switch {
	case err == nil:
		if m.cfg.Debug {
			m.logger.Debug("frame routed", "bytes", len(msg.Data), "received_at", msg.ReceivedAt)
		}
	case errors.Is(err, router.ErrNoTopic):
		m.logger.Debug("ignoring frame without topic", "data", string(msg.Data))
	default:
		m.logger.Warn("dropping malformed frame", "error", err)
	}
}

func (m *Manager) connectionLost(s *session, err error) {
	m.mu.Lock()
	if m.sess != s || m.closed {
		m.mu.Unlock()
		return
	}
	m.sess = nil
	m.router.Reset()
	m.failLocked(err)
	m.mu.Unlock()

	closeSession(s)
}

// failLocked counts a failure and moves to reconnecting or fallback.
func (m *Manager) failLocked(err error) {
	m.failures++
	metrics.IncConnectionFailure()

	if m.failures >= m.cfg.MaxReconnectAttempts {
		m.fallback = true
		metrics.IncFallback()
		m.logger.Warn("reconnect limit reached, entering fallback",
			"failures", m.failures,
			"error", err,
		)
		m.setStatusLocked(StatusFallback, "reconnect limit")
		return
	}

	delay := BackoffDelay(m.failures-1, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay)
	m.logger.Warn("connection failed, retrying",
		"failures", m.failures,
		"delay", delay,
		"error", err,
	)
	m.setStatusLocked(StatusReconnecting, "backoff")

	gen := m.gen
	m.retry = time.AfterFunc(delay, func() {
		m.retryFired(gen)
	})
}

func (m *Manager) retryFired(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.closed || m.status != StatusReconnecting {
		return
	}
	m.retry = nil
	metrics.IncReconnectAttempt()
	m.dialLocked()
}

// teardownLocked invalidates in-flight work and detaches the live session.
// The caller closes the returned session after releasing m.mu.
func (m *Manager) teardownLocked() *session {
	m.gen++
	m.stopRetryLocked()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if n := m.router.Reset(); n > 0 {
		m.logger.Debug("dropped topic handlers", "count", n)
	}
	old := m.sess
	m.sess = nil
	return old
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

func closeSession(s *session) {
	if s == nil {
		return
	}
	close(s.stop)
	s.client.Close()
}

// outgoing is a command frame bound to the transport it was built for.
type outgoing struct {
	client Client
	cmd    string
	topic  string
	data   []byte
}

// commandLocked encodes a command for the live session. Caller holds m.mu.
func (m *Manager) commandLocked(cmd, topic string) *outgoing {
	m.cmdID++
	data, err := json.Marshal(Command{
		ID:     m.cmdID,
		Cmd:    cmd,
		Params: TopicParams{Topic: topic},
	})
	if err != nil {
		m.logger.Error("failed to encode command", "cmd", cmd, "error", err)
		return nil
	}
	return &outgoing{client: m.sess.client, cmd: cmd, topic: topic, data: data}
}

// send writes out without holding m.mu; sendMu keeps commands in order.
func (m *Manager) send(out *outgoing) {
	if out == nil {
		return
	}
	// A failed write surfaces through the read loop as a lost connection.
	if err := out.client.Send(out.data); err != nil {
		m.logger.Warn("failed to send command", "cmd", out.cmd, "topic", out.topic, "error", err)
	}
}

// setStatusLocked records a transition and notifies watchers.
func (m *Manager) setStatusLocked(s Status, reason string) {
	if s == m.status {
		return
	}
	prev := m.status
	m.status = s
	metrics.SetConnectionStatus(string(s))

	if m.cfg.Debug {
		m.logger.Debug("status transition",
			"from", prev,
			"to", s,
			"reason", reason,
			"failures", m.failures,
			"fallback", m.fallback,
		)
	} else {
		m.logger.Info("status changed", "from", prev, "to", s)
	}

	for w := range m.watchers {
		select {
		case <-w:
		default:
		}
		w <- s
	}
}
