package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/penzjakof/anchat-relay/internal/apierrors"
	"github.com/penzjakof/anchat-relay/internal/models"
)

// Conn is the websocket surface the gateway needs from a dashboard
// client connection. *websocket.Conn satisfies it; tests use fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Client is one connected dashboard operator socket.
type Client struct {
	ID       string
	caller   models.CallerContext
	accounts map[string]struct{}
	conn     Conn
	send     chan []byte
	hub      *Hub

	closeOnce sync.Once
	sendMu    sync.RWMutex
	closed    bool
}

// clientCommand is the inbound wire shape from dashboard clients.
type clientCommand struct {
	Action   string `json:"action"`
	DialogID string `json:"dialogId,omitempty"`
}

// Caller returns the identity this client authenticated as.
func (c *Client) Caller() models.CallerContext {
	return c.caller
}

// accountFor finds which of the client's accessible accounts owns the
// dialog. Dialog keys are accountID + "-" + interlocutorID, and account
// ids may themselves contain the separator, so the match is by longest
// prefix against the caller's known accounts rather than by splitting.
// Returns "" when no accessible account matches.
func (c *Client) accountFor(dialogID string) string {
	var best string
	for id := range c.accounts {
		if len(dialogID) > len(id)+1 && strings.HasPrefix(dialogID, id+"-") && len(id) > len(best) {
			best = id
		}
	}
	return best
}

// Run pumps the connection until it drops, then cleans up. Blocks;
// callers run it on the connection's goroutine.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()
	c.readPump(ctx)
}

// readPump handles inbound commands until the socket fails.
func (c *Client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))
	})
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongTimeout))

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleCommand(ctx, raw)
	}
}

func (c *Client) handleCommand(ctx context.Context, raw []byte) {
	var cmd clientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.sendError("malformed command")
		return
	}

	switch cmd.Action {
	case "join":
		room, err := c.hub.Join(ctx, c, cmd.DialogID)
		if err != nil {
			code := apierrors.CodeForbidden
			if errors.Is(err, ErrBadDialogID) {
				code = apierrors.CodeGatewayBadDialog
			}
			c.sendEnvelope(envelope{Event: "error", Data: apierrors.New(code)})
			return
		}
		c.sendEnvelope(envelope{Event: "joined", Data: map[string]string{
			"room":     room,
			"callerId": c.caller.CallerCode,
		}})
	case "leave":
		c.hub.Leave(c, cmd.DialogID)
		c.sendEnvelope(envelope{Event: "left", Data: map[string]string{
			"room": dialogRoom(cmd.DialogID),
		}})
	default:
		c.sendError("unknown action " + cmd.Action)
	}
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	pingInterval := c.hub.cfg.PongTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// trySend queues a payload without blocking. Returns false when the
// send buffer is full; payloads to an already-closed client are
// dropped silently.
func (c *Client) trySend(payload []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) sendEnvelope(env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.trySend(payload)
}

func (c *Client) sendError(message string) {
	c.sendEnvelope(envelope{Event: "error", Data: map[string]string{"message": message}})
}

// close tears the client down exactly once: unregister from the hub,
// stop the write pump, close the socket.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.hub.unregister(c)
		c.sendMu.Lock()
		c.closed = true
		c.sendMu.Unlock()
		close(c.send)
		_ = c.conn.Close()
	})
}
