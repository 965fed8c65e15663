package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/penzjakof/anchat-relay/internal/apierrors"
	"github.com/penzjakof/anchat-relay/internal/chats"
	"github.com/penzjakof/anchat-relay/internal/middleware"
	"github.com/penzjakof/anchat-relay/internal/models"
)

// ChatsHandler serves the aggregated dialog listing endpoints.
type ChatsHandler struct {
	agg *chats.Aggregator
}

// NewChatsHandler creates the handler around an aggregator.
func NewChatsHandler(agg *chats.Aggregator) *ChatsHandler {
	return &ChatsHandler{agg: agg}
}

// HandleListChats handles GET /api/v1/chats.
//
// Query parameters:
//
//	criteria - comma-separated upstream list criteria (e.g. "active,unanswered")
//	cursor   - combined cursor from a previous page
func (h *ChatsHandler) HandleListChats(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		apierrors.Error(c, apierrors.CodeUnauthorized)
		return
	}

	filters := models.DialogFilters{
		Criteria: splitCriteria(c.Query("criteria")),
		Cursor:   c.Query("cursor"),
	}

	result, err := h.agg.FetchDialogs(c.Request.Context(), caller, filters)
	if err != nil {
		apierrors.Error(c, apierrors.CodeChatsFetchFailed)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

func splitCriteria(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
