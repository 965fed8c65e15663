package relay

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the lifecycle position of one upstream connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FrameHandler consumes raw inbound frames from an account's socket.
// Frames are delivered synchronously from the read loop, so per-account
// arrival order is preserved.
type FrameHandler interface {
	HandleFrame(accountID string, raw []byte)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(accountID string, raw []byte)

// HandleFrame calls the wrapped function.
func (f FrameHandlerFunc) HandleFrame(accountID string, raw []byte) {
	f(accountID, raw)
}

// Connection owns one live upstream socket for one managed account.
// It moves Connecting -> Open -> Closing -> Closed; the manager reacts
// to closure through the onClosed callback.
type Connection struct {
	accountID string
	sock      Socket
	logger    *log.Logger
	handler   FrameHandler
	heartbeat time.Duration
	// onClosed fires exactly once. explicit is true when the closure
	// was a deliberate teardown rather than a socket failure.
	onClosed func(explicit bool, err error)

	writeMu sync.Mutex

	mu       sync.Mutex
	state    State
	explicit bool

	done      chan struct{}
	closeOnce sync.Once
}

type handshakeFrame struct {
	Action    string `json:"action"`
	AccountID string `json:"accountId"`
}

func newConnection(accountID string, sock Socket, heartbeat time.Duration, handler FrameHandler, logger *log.Logger, onClosed func(explicit bool, err error)) *Connection {
	return &Connection{
		accountID: accountID,
		sock:      sock,
		logger:    logger,
		handler:   handler,
		heartbeat: heartbeat,
		onClosed:  onClosed,
		state:     StateConnecting,
		done:      make(chan struct{}),
	}
}

// open sends the protocol handshake and starts the read and heartbeat
// loops. Called once, by the manager, right after dialing.
func (c *Connection) open() error {
	frame, err := json.Marshal(handshakeFrame{Action: "handshake", AccountID: c.accountID})
	if err != nil {
		return err
	}
	if err := c.write(websocket.TextMessage, frame); err != nil {
		return err
	}

	c.mu.Lock()
	c.state = StateOpen
	c.mu.Unlock()

	go c.readLoop()
	go c.heartbeatLoop()
	return nil
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Shutdown tears the connection down deliberately. Idempotent; never
// triggers a reconnect.
func (c *Connection) Shutdown() {
	c.mu.Lock()
	c.explicit = true
	c.mu.Unlock()
	c.close(nil)
}

func (c *Connection) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteMessage(messageType, data)
}

// readLoop pumps inbound frames into the handler until the socket
// fails or is closed.
func (c *Connection) readLoop() {
	for {
		messageType, raw, err := c.sock.ReadMessage()
		if err != nil {
			c.close(err)
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		c.handler.HandleFrame(c.accountID, raw)
	}
}

// heartbeatLoop pings the upstream at a fixed interval while the
// socket is open.
func (c *Connection) heartbeatLoop() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := c.sock.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.close(err)
				return
			}
		}
	}
}

// close finalizes the connection exactly once: the heartbeat stops via
// done, the socket is closed, and the manager is notified.
func (c *Connection) close(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosing
		explicit := c.explicit
		c.mu.Unlock()

		close(c.done)
		_ = c.sock.Close()

		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		if err != nil && !explicit {
			c.logger.Printf("[relay] account %s socket closed: %v", c.accountID, err)
		}
		if c.onClosed != nil {
			c.onClosed(explicit, err)
		}
	})
}
