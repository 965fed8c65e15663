package relay

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penzjakof/anchat-relay/internal/config"
	"github.com/penzjakof/anchat-relay/internal/models"
	"github.com/penzjakof/anchat-relay/internal/session"
)

type fakeSocket struct {
	mu           sync.Mutex
	frames       chan []byte
	closed       chan struct{}
	once         sync.Once
	written      [][]byte
	rejectWrites bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case f := <-s.frames:
		return websocket.TextMessage, f, nil
	case <-s.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	select {
	case <-s.closed:
		return errors.New("use of closed connection")
	default:
	}
	if s.rejectWrites {
		return errors.New("connection reset by peer")
	}
	s.mu.Lock()
	s.written = append(s.written, data)
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) WriteControl(messageType int, data []byte, deadline time.Time) error {
	select {
	case <-s.closed:
		return errors.New("use of closed connection")
	default:
		return nil
	}
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// fail simulates the upstream dropping the socket.
func (s *fakeSocket) fail() {
	s.Close()
}

func (s *fakeSocket) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

type fakeDialer struct {
	mu        sync.Mutex
	socks     map[string][]*fakeSocket
	failing   map[string]bool
	resetting map[string]bool
	dialErrs  map[string]int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		socks:     make(map[string][]*fakeSocket),
		failing:   make(map[string]bool),
		resetting: make(map[string]bool),
		dialErrs:  make(map[string]int),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, sess models.AccountSession) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing[sess.AccountID] {
		d.dialErrs[sess.AccountID]++
		return nil, errors.New("connection refused")
	}
	s := newFakeSocket()
	s.rejectWrites = d.resetting[sess.AccountID]
	d.socks[sess.AccountID] = append(d.socks[sess.AccountID], s)
	return s, nil
}

func (d *fakeDialer) setFailing(accountID string, failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing[accountID] = failing
}

// setResetting makes future dials succeed but hands out sockets that
// reset on the first write, so the handshake never completes.
func (d *fakeDialer) setResetting(accountID string, resetting bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetting[accountID] = resetting
}

func (d *fakeDialer) dialCount(accountID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.socks[accountID]) + d.dialErrs[accountID]
}

func (d *fakeDialer) lastSocket(accountID string) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	socks := d.socks[accountID]
	if len(socks) == 0 {
		return nil
	}
	return socks[len(socks)-1]
}

type recordingHandler struct {
	mu     sync.Mutex
	frames []string
}

func (h *recordingHandler) HandleFrame(accountID string, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frames = append(h.frames, accountID+":"+string(raw))
}

func (h *recordingHandler) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.frames))
	copy(out, h.frames)
	return out
}

func testRelayConfig() config.RelayConfig {
	return config.RelayConfig{
		HeartbeatInterval:    50 * time.Millisecond,
		HandshakeTimeout:     time.Second,
		ReconnectDelay:       20 * time.Millisecond,
		MaxReconnectAttempts: 3,
		ConnectStagger:       0,
		DedupTTL:             30 * time.Second,
	}
}

func validSession(accountID string) models.AccountSession {
	return models.AccountSession{
		AccountID: accountID,
		AuthBlob:  "auth=" + accountID,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func newTestManager(t *testing.T, source session.Source, dialer Dialer) (*Manager, *recordingHandler) {
	t.Helper()
	handler := &recordingHandler{}
	m := NewManager(testRelayConfig(), source, dialer, handler, WithLogger(log.New(testWriter{t}, "", 0)))
	t.Cleanup(m.Shutdown)
	return m, handler
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestManager_StartAll(t *testing.T) {
	t.Run("ConnectsAllValidSessions", func(t *testing.T) {
		source := session.NewMemorySource()
		source.Put(validSession("a1"))
		source.Put(validSession("a2"))
		dialer := newFakeDialer()
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))

		status := m.ConnectionStatus()
		assert.True(t, status["a1"])
		assert.True(t, status["a2"])
	})

	t.Run("OneFailingAccountDoesNotBlockOthers", func(t *testing.T) {
		source := session.NewMemorySource()
		source.Put(validSession("bad"))
		source.Put(validSession("good"))
		dialer := newFakeDialer()
		dialer.setFailing("bad", true)
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))

		status := m.ConnectionStatus()
		assert.True(t, status["good"])
		assert.False(t, status["bad"])
	})

	t.Run("SkipsExpiredSessions", func(t *testing.T) {
		source := session.NewMemorySource()
		expired := validSession("stale")
		expired.ExpiresAt = time.Now().Add(-time.Minute)
		source.Put(expired)
		dialer := newFakeDialer()
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))

		// The memory source filters expired sessions, so nothing dials.
		assert.Zero(t, dialer.dialCount("stale"))
		assert.Empty(t, m.ConnectionStatus())
	})
}

func TestManager_ConnectAccount(t *testing.T) {
	t.Run("RejectsExpiredSessionBeforeDialing", func(t *testing.T) {
		dialer := newFakeDialer()
		m, _ := newTestManager(t, session.NewMemorySource(), dialer)

		sess := validSession("a1")
		sess.ExpiresAt = time.Now().Add(-time.Second)

		err := m.ConnectAccount(context.Background(), sess)
		require.Error(t, err)
		assert.Zero(t, dialer.dialCount("a1"))
	})

	t.Run("NoopWhenAlreadyConnected", func(t *testing.T) {
		dialer := newFakeDialer()
		m, _ := newTestManager(t, session.NewMemorySource(), dialer)

		require.NoError(t, m.ConnectAccount(context.Background(), validSession("a1")))
		require.NoError(t, m.ConnectAccount(context.Background(), validSession("a1")))

		assert.Equal(t, 1, dialer.dialCount("a1"))
	})

	t.Run("SendsHandshakeFrame", func(t *testing.T) {
		dialer := newFakeDialer()
		m, _ := newTestManager(t, session.NewMemorySource(), dialer)

		require.NoError(t, m.ConnectAccount(context.Background(), validSession("a1")))

		sock := dialer.lastSocket("a1")
		require.NotNil(t, sock)
		require.Equal(t, 1, sock.writeCount())
		assert.Contains(t, string(sock.written[0]), `"handshake"`)
		assert.Contains(t, string(sock.written[0]), `"a1"`)
	})
}

func TestManager_FrameDelivery(t *testing.T) {
	dialer := newFakeDialer()
	m, handler := newTestManager(t, session.NewMemorySource(), dialer)

	require.NoError(t, m.ConnectAccount(context.Background(), validSession("a1")))
	sock := dialer.lastSocket("a1")
	require.NotNil(t, sock)

	sock.frames <- []byte("one")
	sock.frames <- []byte("two")
	sock.frames <- []byte("three")

	require.Eventually(t, func() bool {
		return len(handler.all()) == 3
	}, time.Second, 5*time.Millisecond)

	// Arrival order within one account is preserved.
	assert.Equal(t, []string{"a1:one", "a1:two", "a1:three"}, handler.all())
}

func TestManager_Reconnect(t *testing.T) {
	t.Run("ReconnectsAfterSocketLoss", func(t *testing.T) {
		source := session.NewMemorySource()
		source.Put(validSession("a1"))
		dialer := newFakeDialer()
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))
		dialer.lastSocket("a1").fail()

		require.Eventually(t, func() bool {
			return dialer.dialCount("a1") == 2 && m.ConnectionStatus()["a1"]
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("StopsAfterMaxAttempts", func(t *testing.T) {
		source := session.NewMemorySource()
		source.Put(validSession("a1"))
		dialer := newFakeDialer()
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))

		// Every reconnect attempt from now on is refused.
		dialer.setFailing("a1", true)
		dialer.lastSocket("a1").fail()

		// 1 initial success + 3 failed reconnect attempts, then quiet.
		require.Eventually(t, func() bool {
			return dialer.dialCount("a1") == 4
		}, time.Second, 5*time.Millisecond)

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 4, dialer.dialCount("a1"))
		assert.False(t, m.ConnectionStatus()["a1"])
	})

	t.Run("HandshakeFailuresExhaustAttemptBudget", func(t *testing.T) {
		source := session.NewMemorySource()
		source.Put(validSession("a1"))
		dialer := newFakeDialer()
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))

		// From now on the upstream accepts every dial but drops the
		// socket before the handshake frame goes through. The attempt
		// counter must not reset on the successful dial alone.
		dialer.setResetting("a1", true)
		dialer.lastSocket("a1").fail()

		// 1 initial success + 3 handshake-failing redials, then quiet.
		require.Eventually(t, func() bool {
			return dialer.dialCount("a1") == 4
		}, time.Second, 5*time.Millisecond)

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 4, dialer.dialCount("a1"))
		assert.False(t, m.ConnectionStatus()["a1"])
	})

	t.Run("AttemptCounterResetsOnSuccess", func(t *testing.T) {
		source := session.NewMemorySource()
		source.Put(validSession("a1"))
		dialer := newFakeDialer()
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))

		// First loss reconnects fine.
		dialer.lastSocket("a1").fail()
		require.Eventually(t, func() bool {
			return dialer.dialCount("a1") == 2 && m.ConnectionStatus()["a1"]
		}, time.Second, 5*time.Millisecond)

		// Second loss still has the full attempt budget.
		dialer.lastSocket("a1").fail()
		require.Eventually(t, func() bool {
			return dialer.dialCount("a1") == 3 && m.ConnectionStatus()["a1"]
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("ExplicitDisconnectDoesNotReconnect", func(t *testing.T) {
		source := session.NewMemorySource()
		source.Put(validSession("a1"))
		dialer := newFakeDialer()
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))
		m.DisconnectAccount("a1")

		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, 1, dialer.dialCount("a1"))
		_, known := m.ConnectionStatus()["a1"]
		assert.False(t, known)
	})

	t.Run("DisconnectIsIdempotent", func(t *testing.T) {
		source := session.NewMemorySource()
		source.Put(validSession("a1"))
		dialer := newFakeDialer()
		m, _ := newTestManager(t, source, dialer)

		require.NoError(t, m.StartAll(context.Background()))
		m.DisconnectAccount("a1")
		m.DisconnectAccount("a1")
		m.DisconnectAccount("never-connected")
	})
}

func TestManager_ReconnectAll(t *testing.T) {
	source := session.NewMemorySource()
	source.Put(validSession("a1"))
	source.Put(validSession("a2"))
	dialer := newFakeDialer()
	m, _ := newTestManager(t, source, dialer)

	require.NoError(t, m.StartAll(context.Background()))
	require.NoError(t, m.ReconnectAll(context.Background()))

	assert.Equal(t, 2, dialer.dialCount("a1"))
	assert.Equal(t, 2, dialer.dialCount("a2"))
	status := m.ConnectionStatus()
	assert.True(t, status["a1"])
	assert.True(t, status["a2"])
}

func TestManager_EnsureAccount(t *testing.T) {
	source := session.NewMemorySource()
	source.Put(validSession("a1"))
	dialer := newFakeDialer()
	m, _ := newTestManager(t, source, dialer)

	require.NoError(t, m.EnsureAccount(context.Background(), "a1"))
	require.NoError(t, m.EnsureAccount(context.Background(), "a1"))
	assert.Equal(t, 1, dialer.dialCount("a1"))

	err := m.EnsureAccount(context.Background(), "unknown")
	assert.Error(t, err)
}
