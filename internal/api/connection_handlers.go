package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/penzjakof/anchat-relay/internal/apierrors"
	"github.com/penzjakof/anchat-relay/internal/relay"
)

// ConnectionHandler exposes the relay manager's connection state.
type ConnectionHandler struct {
	manager *relay.Manager
}

// NewConnectionHandler creates the handler around the relay manager.
func NewConnectionHandler(manager *relay.Manager) *ConnectionHandler {
	return &ConnectionHandler{manager: manager}
}

// HandleConnectionStatus handles GET /api/v1/connections/status. Every
// account the relay has ever tried to connect appears in the map, open
// or not, so the dashboard can show dead accounts too.
func (h *ConnectionHandler) HandleConnectionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.manager.ConnectionStatus()})
}

// HandleReconnectAll handles POST /api/v1/connections/reconnect. It
// forces the sweep that normally runs on the cron schedule.
func (h *ConnectionHandler) HandleReconnectAll(c *gin.Context) {
	if err := h.manager.ReconnectAll(c.Request.Context()); err != nil {
		apierrors.ErrorWithMessage(c, apierrors.CodeInternalError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
