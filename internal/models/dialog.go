package models

import "time"

// DialogSummary is one entry in an aggregated dialog listing. Rebuilt
// on every aggregation call, never cached.
type DialogSummary struct {
	AccountID          string     `json:"accountId"`
	InterlocutorID     string     `json:"interlocutorId"`
	LastMessagePreview string     `json:"lastMessagePreview,omitempty"`
	UnreadCount        int        `json:"unreadCount,omitempty"`
	Unanswered         bool       `json:"unanswered,omitempty"`
	UpdatedAt          *time.Time `json:"updatedAt,omitempty"`
	SourceCursor       string     `json:"-"`
}

// Profile is the interlocutor metadata resolved through whichever
// authenticated account could serve it.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Age       int    `json:"age,omitempty"`
	City      string `json:"city,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Online    bool   `json:"online,omitempty"`
}

// DialogFilters narrows an aggregated dialog fetch.
type DialogFilters struct {
	// Criteria are upstream-defined list criteria, e.g. "active",
	// "bookmarked", "unanswered".
	Criteria []string `json:"criteria,omitempty"`
	// Cursor is the combined cursor string returned by a previous page.
	Cursor string `json:"cursor,omitempty"`
}

// Unanswered reports whether the caller asked for the unanswered feed.
func (f DialogFilters) Unanswered() bool {
	for _, c := range f.Criteria {
		if c == "unanswered" {
			return true
		}
	}
	return false
}
