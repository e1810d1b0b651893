package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

type (
	notesResource    = resource[models.Note, *models.Note, models.NotePatch]
	tasksResource    = resource[models.Task, *models.Task, models.TaskPatch]
	sessionsResource = resource[models.FocusSession, *models.FocusSession, models.FocusSessionPatch]
)

// archiveNote toggles the archived flag. Archiving is announced as
// note_archived, restoring as note_updated.
func archiveNote(h *notesResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userFromContext(r.Context()).ID

		n, err := h.c.Modify(r.Context(), userID, chi.URLParam(r, "id"), func(n *models.Note) error {
			n.SetArchived(!n.IsArchived)
			return nil
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}

		change := changeUpdated
		if n.IsArchived {
			change = changeArchived
		}
		h.changed(r.Context(), userID, change, n)
		h.writeItem(w, http.StatusOK, n, "")
	}
}

// duplicateNote copies a note into a new one titled "<title> (Copy)".
func duplicateNote(h *notesResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := userFromContext(r.Context()).ID

		src, err := h.c.Get(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		dup, err := h.c.Create(r.Context(), userID, src.Copy())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.changed(r.Context(), userID, changeCreated, dup)
		h.writeItem(w, http.StatusCreated, dup, "Note duplicated successfully")
	}
}

func toggleTask(h *tasksResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := h.s.now()
		h.modify(w, r, changeUpdated, func(t *models.Task) error {
			t.Toggle(now)
			return nil
		})
	}
}

// completeSession marks a focus session finished. The body may carry
// {"notes": "..."}.
func completeSession(h *sessionsResource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Notes string `json:"notes"`
		}
		if err := decodeJSON(r, &body, true); err != nil {
			h.fail(w, r, err)
			return
		}

		now := h.s.now()
		h.modify(w, r, changeUpdated, func(s *models.FocusSession) error {
			s.Complete(now, body.Notes)
			return nil
		})
	}
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	ts := s.store.Settings.Get(r.Context(), userFromContext(r.Context()).ID)
	writeOK(w, http.StatusOK, ts, "")
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.TimerSettingsPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		writeServiceError(w, err)
		return
	}

	ts, err := s.store.Settings.Update(r.Context(), userFromContext(r.Context()).ID, patch)
	if err != nil {
		if writeServiceError(w, err) {
			s.log.Error(r.Context(), "update settings failed", "err", err)
		}
		return
	}
	writeOK(w, http.StatusOK, ts, "Timer settings updated successfully")
}
