package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/server/stream"
)

// publishNote announces a note change on its owner's streams.
func (s *Server) publishNote(ctx context.Context, userID, change string, n models.Note) {
	ev := stream.Event{
		Type:      "note_" + change,
		NoteID:    n.ID,
		UserID:    userID,
		Timestamp: s.now().UTC(),
	}
	if change != changeDeleted {
		ev.Note = n
	}
	sent := s.stream.Publish(userID, ev)
	s.log.Debug(ctx, "note event published", "type", ev.Type, "note_id", n.ID, "subscribers", sent)
}

// notesStream holds a text/event-stream open for the authenticated user.
// It opens with a connection frame, then forwards the user's note events
// and a ping every cfg.PingInterval.
func (s *Server) notesStream(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := s.stream.Subscribe(ctx, user.ID)

	send := func(ev stream.Event) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(stream.Event{
		Type:      stream.TypeConnection,
		UserID:    user.ID,
		Timestamp: s.now().UTC(),
		Message:   "Connected to notes stream",
	}); err != nil {
		s.log.Warn(ctx, "event stream not writable", "err", err)
		return
	}
	s.log.Info(ctx, "event stream opened", "user_id", user.ID)
	defer s.log.Info(ctx, "event stream closed", "user_id", user.ID)

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		var ev stream.Event
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ev = e
		case <-ping.C:
			ev = stream.Event{Type: stream.TypePing, Timestamp: s.now().UTC()}
		}
		if err := send(ev); err != nil {
			return
		}
	}
}
