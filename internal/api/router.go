// Package api wires the HTTP surface: the aggregated chats listing,
// relay connection status, the websocket gateway endpoint, health and
// metrics.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/penzjakof/anchat-relay/internal/auth"
	"github.com/penzjakof/anchat-relay/internal/config"
	"github.com/penzjakof/anchat-relay/internal/gateway"
	"github.com/penzjakof/anchat-relay/internal/middleware"
)

// RouterDeps collects everything the router mounts.
type RouterDeps struct {
	Chats       *ChatsHandler
	Connections *ConnectionHandler
	Hub         *gateway.Hub
	JWT         *auth.JWTManager
}

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authd := middleware.Auth(deps.JWT)

	v1 := r.Group("/api/v1", authd, middleware.RateLimit(cfg.App.RateLimitPerHour))
	{
		v1.GET("/chats", deps.Chats.HandleListChats)
		v1.GET("/connections/status", deps.Connections.HandleConnectionStatus)
		v1.POST("/connections/reconnect", deps.Connections.HandleReconnectAll)
	}

	r.GET("/ws", authd, deps.Hub.ServeWS)

	return r
}
