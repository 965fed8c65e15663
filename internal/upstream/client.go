// Package upstream speaks the dating platform's HTTP API on behalf of
// authenticated managed accounts. The request/response shapes are the
// platform's, implemented against, not designed here.
package upstream

import (
	"context"
	"time"

	"github.com/penzjakof/anchat-relay/internal/models"
)

// Dialog is one conversation thread as the platform reports it. The
// platform labels the two sides "idUser"/"idInterlocutor" relative to
// the authenticated account.
type Dialog struct {
	InterlocutorID string     `json:"idInterlocutor"`
	LastMessage    string     `json:"lastMessage"`
	UnreadCount    int        `json:"unreadCount"`
	UpdatedAt      *time.Time `json:"dateUpdated"`
}

// DialogsPage is one page of a dialog listing for a single account.
type DialogsPage struct {
	Dialogs []Dialog `json:"dialogs"`
	Cursor  string   `json:"cursor"`
	HasMore bool     `json:"hasMore"`
}

// UnansweredItem is one entry from the platform's unanswered feed.
type UnansweredItem struct {
	InterlocutorID string     `json:"idInterlocutor"`
	LastMessage    string     `json:"lastMessage"`
	Flagged        bool       `json:"flagged"`
	Trusted        bool       `json:"trusted"`
	UpdatedAt      *time.Time `json:"dateUpdated"`
}

// Client is the per-account HTTP surface the relay consumes. Every
// call authenticates with the session's auth blob; an expired blob
// yields an upstream error, never a crash.
type Client interface {
	// ListDialogs fetches one page of the account's dialogs matching
	// the given criteria. An empty cursor fetches from the start.
	ListDialogs(ctx context.Context, session models.AccountSession, criteria []string, cursor string, limit int) (DialogsPage, error)

	// ListUnanswered fetches the account's unanswered feed.
	ListUnanswered(ctx context.Context, session models.AccountSession) ([]UnansweredItem, error)

	// ResolveProfiles resolves interlocutor metadata visible to the
	// authenticated account. Ids the account cannot see are simply
	// absent from the result.
	ResolveProfiles(ctx context.Context, session models.AccountSession, ids []string) ([]models.Profile, error)
}
