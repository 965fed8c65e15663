package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/penzjakof/anchat-relay/internal/apierrors"
	"github.com/penzjakof/anchat-relay/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The dashboard frontend is served from its own origin; token
	// validation in the auth middleware is the access control here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an authenticated request to a websocket and runs
// the client until it disconnects.
func (h *Hub) ServeWS(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		apierrors.Error(c, apierrors.CodeUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Printf("[gateway] upgrade failed for %s: %v", caller.CallerCode, err)
		return
	}

	client, err := h.Register(c.Request.Context(), caller, conn)
	if err != nil {
		h.logger.Printf("[gateway] register failed for %s: %v", caller.CallerCode, err)
		_ = conn.Close()
		return
	}

	client.Run(c.Request.Context())
}
