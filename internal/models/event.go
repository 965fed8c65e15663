package models

import (
	"encoding/json"
	"time"
)

// EventType discriminates the closed set of domain event variants the
// normalizer emits. Anything the upstream pushes that is not modeled
// explicitly comes through as EventGeneric.
type EventType string

const (
	EventMessageNew         EventType = "message.new"
	EventMessageRead        EventType = "message.read"
	EventEmailNew           EventType = "email.new"
	EventDialogLimitChanged EventType = "dialog.limit.changed"
	EventGeneric            EventType = "generic"
)

// DomainEvent is one normalized upstream push. Events are transient:
// they travel the in-process bus and the gateway fan-out and are never
// persisted.
//
// AccountID is always the managed account whose connection received the
// frame. InterlocutorID is always the outside party, regardless of
// which side the upstream frame called "from" or "to".
type DomainEvent struct {
	Type           EventType       `json:"type"`
	AccountID      string          `json:"accountId"`
	InterlocutorID string          `json:"interlocutorId,omitempty"`
	MessageID      string          `json:"messageId,omitempty"`
	EmailID        string          `json:"emailId,omitempty"`
	DialogID       string          `json:"dialogId,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// DialogKey returns the canonical room key for the dialog this event
// belongs to, or "" when the event is not tied to a dialog.
func (e DomainEvent) DialogKey() string {
	if e.AccountID == "" || e.InterlocutorID == "" {
		return ""
	}
	return DialogKey(e.AccountID, e.InterlocutorID)
}

// DialogKey builds the canonical identifier for the dialog between a
// managed account and an outside party.
func DialogKey(accountID, interlocutorID string) string {
	return accountID + "-" + interlocutorID
}
