// Package stream fans note change events out to the event-stream
// connections of the user who owns the note.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event types sent over the notes stream.
const (
	TypeConnection   = "connection"
	TypePing         = "ping"
	TypeNoteCreated  = "note_created"
	TypeNoteUpdated  = "note_updated"
	TypeNoteDeleted  = "note_deleted"
	TypeNoteArchived = "note_archived"
)

// Event is one frame of the notes stream.
type Event struct {
	Type      string    `json:"type"`
	NoteID    string    `json:"noteId,omitempty"`
	Note      any       `json:"note,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

const bufferSize = 16

// Stream keeps the active subscribers of every user.
type Stream struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan Event
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers a subscriber for userID and returns a channel which
// will receive that user's events. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, userID string) <-chan Event {
	ch := make(chan Event, bufferSize)

	s.mu.Lock()
	id := s.next
	s.next++
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]chan Event)
	}
	s.subs[userID][id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs[userID], id)
		if len(s.subs[userID]) == 0 {
			delete(s.subs, userID)
		}
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish sends ev to every subscriber of userID and reports how many
// received it. Slow subscribers miss the event rather than block.
func (s *Stream) Publish(userID string, ev Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := 0
	for _, ch := range s.subs[userID] {
		select {
		case ch <- ev:
			sent++
		default:
		}
	}
	return sent
}

// Subscribers returns the number of open subscriptions of userID.
func (s *Stream) Subscribers(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[userID])
}
