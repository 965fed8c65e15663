package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// Socket is the minimal surface the relay needs from an upstream
// websocket. *websocket.Conn satisfies it; tests substitute fakes.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens an authenticated upstream socket for one account.
type Dialer interface {
	Dial(ctx context.Context, session models.AccountSession) (Socket, error)
}

// WSDialer dials the platform's push endpoint with gorilla/websocket,
// attaching the session's auth blob as the handshake cookie.
type WSDialer struct {
	url              string
	handshakeTimeout time.Duration
}

// NewWSDialer creates a dialer for the given socket URL.
func NewWSDialer(url string, handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{url: url, handshakeTimeout: handshakeTimeout}
}

// Dial opens the socket. The context bounds the whole handshake; a
// handshake that never completes is aborted when it expires.
func (d *WSDialer) Dial(ctx context.Context, session models.AccountSession) (Socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	header := http.Header{}
	header.Set("Cookie", session.AuthBlob)

	conn, resp, err := dialer.DialContext(ctx, d.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
