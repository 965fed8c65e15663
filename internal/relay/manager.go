// Package relay maintains one persistent, authenticated upstream
// socket per managed account: connect, heartbeat, receive, bounded
// reconnection, and clean shutdown. A single account's failures never
// spill over onto other accounts.
package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/penzjakof/anchat-relay/internal/config"
	"github.com/penzjakof/anchat-relay/internal/models"
	"github.com/penzjakof/anchat-relay/internal/session"
)

// Manager owns the accountID-keyed connection registry. All mutation
// goes through its API; there is no ambient singleton.
type Manager struct {
	cfg     config.RelayConfig
	source  session.Source
	dialer  Dialer
	handler FrameHandler
	logger  *log.Logger
	metrics *relayMetrics
	now     func() time.Time

	mu       sync.Mutex
	conns    map[string]*Connection
	attempts map[string]int
	timers   map[string]*time.Timer
	stopped  bool
}

// Option applies configuration to the manager.
type Option func(*Manager)

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a connection manager. The handler receives every
// raw inbound frame; the source supplies authentication material.
func NewManager(cfg config.RelayConfig, source session.Source, dialer Dialer, handler FrameHandler, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		source:   source,
		dialer:   dialer,
		handler:  handler,
		logger:   log.Default(),
		metrics:  globalRelayMetrics(),
		now:      time.Now,
		conns:    make(map[string]*Connection),
		attempts: make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartAll connects every currently valid account session, one at a
// time with a small stagger so a restart does not hammer the upstream.
// Individual failures are logged and skipped.
func (m *Manager) StartAll(ctx context.Context) error {
	sessions, err := m.source.AllValid(ctx)
	if err != nil {
		return fmt.Errorf("list valid sessions: %w", err)
	}

	for i, s := range sessions {
		if i > 0 && m.cfg.ConnectStagger > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.cfg.ConnectStagger):
			}
		}
		if err := m.ConnectAccount(ctx, s); err != nil {
			m.logger.Printf("[relay] account %s: connect failed: %v", s.AccountID, err)
		}
	}
	return nil
}

// ConnectAccount opens a connection for one account session. No-op if
// a live connection already exists. An expired session is rejected
// before any network I/O.
func (m *Manager) ConnectAccount(ctx context.Context, sess models.AccountSession) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("relay manager stopped")
	}
	if _, ok := m.conns[sess.AccountID]; ok {
		m.mu.Unlock()
		return nil
	}
	// Track the account from the first attempt so status reporting
	// covers accounts that never managed to connect.
	if _, ok := m.attempts[sess.AccountID]; !ok {
		m.attempts[sess.AccountID] = 0
	}
	m.mu.Unlock()

	if !sess.Usable(m.now()) {
		return fmt.Errorf("session for account %s is expired or incomplete", sess.AccountID)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	defer cancel()

	sock, err := m.dialer.Dial(dialCtx, sess)
	if err != nil {
		m.metrics.recordConnect(false)
		return fmt.Errorf("dial account %s: %w", sess.AccountID, err)
	}

	accountID := sess.AccountID
	conn := newConnection(accountID, sock, m.cfg.HeartbeatInterval, m.handler, m.logger, func(explicit bool, cause error) {
		m.metrics.recordClosed()
		m.handleClosed(accountID, explicit)
	})

	m.mu.Lock()
	if _, ok := m.conns[accountID]; ok {
		// Lost the race to a concurrent connect; keep the winner.
		m.mu.Unlock()
		_ = sock.Close()
		return nil
	}
	m.conns[accountID] = conn
	m.mu.Unlock()

	if err := conn.open(); err != nil {
		m.mu.Lock()
		delete(m.conns, accountID)
		m.mu.Unlock()
		_ = sock.Close()
		m.metrics.recordConnect(false)
		return fmt.Errorf("handshake account %s: %w", accountID, err)
	}

	// The attempt budget resets only once the handshake is through; a
	// dial that the upstream accepts and immediately drops still burns
	// an attempt, so the counter stays bounded.
	m.mu.Lock()
	m.attempts[accountID] = 0
	m.mu.Unlock()

	m.metrics.recordConnect(true)
	m.logger.Printf("[relay] account %s connected", accountID)
	return nil
}

// EnsureAccount connects an account by id if it is not already
// connected. Used when a dashboard client starts watching a dialog.
func (m *Manager) EnsureAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	_, live := m.conns[accountID]
	m.mu.Unlock()
	if live {
		return nil
	}

	sessions, err := m.source.AllValid(ctx)
	if err != nil {
		return fmt.Errorf("list valid sessions: %w", err)
	}
	for _, s := range sessions {
		if s.AccountID == accountID {
			return m.ConnectAccount(ctx, s)
		}
	}
	return fmt.Errorf("no valid session for account %s", accountID)
}

// DisconnectAccount tears down an account's connection without
// scheduling a reconnect. Idempotent.
func (m *Manager) DisconnectAccount(accountID string) {
	m.mu.Lock()
	if t, ok := m.timers[accountID]; ok {
		t.Stop()
		delete(m.timers, accountID)
	}
	delete(m.attempts, accountID)
	conn := m.conns[accountID]
	m.mu.Unlock()

	if conn != nil {
		conn.Shutdown()
	}
}

// ReconnectAll tears every connection down and runs StartAll again.
func (m *Manager) ReconnectAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.DisconnectAccount(id)
	}
	return m.StartAll(ctx)
}

// ConnectionStatus returns a point-in-time snapshot of which accounts
// currently hold an open socket. Never blocks on network I/O.
func (m *Manager) ConnectionStatus() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool, len(m.attempts))
	for id := range m.attempts {
		out[id] = false
	}
	for id, conn := range m.conns {
		out[id] = conn.State() == StateOpen
	}
	return out
}

// Shutdown closes every connection and stops all pending reconnects.
// The manager cannot be restarted afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.stopped = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Shutdown()
	}
}

// handleClosed is the single close handler: it removes the registry
// entry and decides whether a reconnect is warranted.
func (m *Manager) handleClosed(accountID string, explicit bool) {
	m.mu.Lock()
	delete(m.conns, accountID)
	if explicit || m.stopped {
		m.mu.Unlock()
		return
	}
	m.scheduleReconnectLocked(accountID)
	m.mu.Unlock()
}

// scheduleReconnectLocked arms the reconnect timer for an account if
// its attempt budget is not yet exhausted. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked(accountID string) {
	attempts := m.attempts[accountID]
	if attempts >= m.cfg.MaxReconnectAttempts {
		m.metrics.exhausted.Inc()
		m.logger.Printf("[relay] account %s: reconnect attempts exhausted (%d), leaving disconnected until next sweep", accountID, attempts)
		return
	}
	m.attempts[accountID] = attempts + 1
	m.metrics.reconnects.Inc()

	if t, ok := m.timers[accountID]; ok {
		t.Stop()
	}
	m.timers[accountID] = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.reconnect(accountID)
	})
}

// reconnect runs on the reconnect timer. The session is re-fetched
// because the auth material may have rotated since the socket dropped.
func (m *Manager) reconnect(accountID string) {
	m.mu.Lock()
	delete(m.timers, accountID)
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout+5*time.Second)
	defer cancel()

	sessions, err := m.source.AllValid(ctx)
	if err != nil {
		m.logger.Printf("[relay] account %s: reconnect aborted, session lookup failed: %v", accountID, err)
		return
	}

	var found *models.AccountSession
	for i := range sessions {
		if sessions[i].AccountID == accountID {
			found = &sessions[i]
			break
		}
	}
	if found == nil {
		m.logger.Printf("[relay] account %s: no valid session, reconnect dropped", accountID)
		return
	}

	if err := m.ConnectAccount(ctx, *found); err != nil {
		m.logger.Printf("[relay] account %s: reconnect failed: %v", accountID, err)
		m.mu.Lock()
		if !m.stopped {
			m.scheduleReconnectLocked(accountID)
		}
		m.mu.Unlock()
	}
}
