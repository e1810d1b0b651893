// Package push keeps a long-lived server-sent-events connection to the
// remote service and fans the change notifications it delivers out to
// subscribers, reconnecting with exponential backoff when it drops.
package push

import (
	"encoding/json"
	"strings"
	"time"
)

// Wire event types.
const (
	TypeConnection = "connection"
	TypePing       = "ping"

	TypeNoteCreated  = "note_created"
	TypeNoteUpdated  = "note_updated"
	TypeNoteDeleted  = "note_deleted"
	TypeNoteArchived = "note_archived"
)

// Actions, the type with its entity prefix removed.
const (
	ActionCreated  = "created"
	ActionUpdated  = "updated"
	ActionDeleted  = "deleted"
	ActionArchived = "archived"
)

// Event is one change notification. Entity holds the record for created,
// updated and archived events when the server sends it.
type Event struct {
	Type      string          `json:"type"`
	EntityID  string          `json:"noteId,omitempty"`
	Entity    json.RawMessage `json:"note,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Message   string          `json:"message,omitempty"`
}

// Action returns "created", "updated", "deleted" or "archived".
func (e Event) Action() string {
	if _, act, ok := strings.Cut(e.Type, "_"); ok {
		return act
	}
	return e.Type
}

// HasEntity reports whether the event carries the changed record.
func (e Event) HasEntity() bool {
	s := strings.TrimSpace(string(e.Entity))
	return s != "" && s != "null"
}
