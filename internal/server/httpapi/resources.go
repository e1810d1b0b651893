package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/studyctl/internal/query"
	"github.com/dmitrijs2005/studyctl/internal/server/records"
)

// Record change kinds reported to publish.
const (
	changeCreated  = "created"
	changeUpdated  = "updated"
	changeDeleted  = "deleted"
	changeArchived = "archived"
)

// resource serves the CRUD routes of one collection. Lists are wrapped
// as {listField: [...]}, single records as {itemField: {...}}.
type resource[R query.Record, PR records.Entity[R], P records.Patch[R]] struct {
	s         *Server
	c         *records.Collection[R, PR, P]
	listField string
	itemField string
	publish   func(ctx context.Context, userID, change string, rec R)
}

func newResource[R query.Record, PR records.Entity[R], P records.Patch[R]](s *Server, c *records.Collection[R, PR, P], listField, itemField string) *resource[R, PR, P] {
	return &resource[R, PR, P]{s: s, c: c, listField: listField, itemField: itemField}
}

func (h *resource[R, PR, P]) mount(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/search", h.search)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.remove)
}

func (h *resource[R, PR, P]) list(w http.ResponseWriter, r *http.Request) {
	p, err := query.FromValues(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	h.writeList(w, r, p)
}

func (h *resource[R, PR, P]) search(w http.ResponseWriter, r *http.Request) {
	p, err := query.FromValues(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	if strings.TrimSpace(p.Search) == "" {
		writeError(w, http.StatusBadRequest, CodeValidation, "Search query is required")
		return
	}
	h.writeList(w, r, p)
}

// overdue lists open tasks past their due date.
func (h *resource[R, PR, P]) overdue(w http.ResponseWriter, r *http.Request) {
	p, err := query.FromValues(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	}
	p.Overdue = true
	h.writeList(w, r, p)
}

func (h *resource[R, PR, P]) writeList(w http.ResponseWriter, r *http.Request, p query.Params) {
	items, page := h.c.List(r.Context(), userFromContext(r.Context()).ID, p)
	writePage(w, map[string]any{h.listField: items}, page)
}

func (h *resource[R, PR, P]) get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.c.Get(r.Context(), userFromContext(r.Context()).ID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeItem(w, http.StatusOK, rec, "")
}

func (h *resource[R, PR, P]) create(w http.ResponseWriter, r *http.Request) {
	var rec R
	if err := decodeJSON(r, &rec, false); err != nil {
		h.fail(w, r, err)
		return
	}

	userID := userFromContext(r.Context()).ID
	rec, err := h.c.Create(r.Context(), userID, rec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(r.Context(), userID, changeCreated, rec)
	h.writeItem(w, http.StatusCreated, rec, "Created successfully")
}

func (h *resource[R, PR, P]) update(w http.ResponseWriter, r *http.Request) {
	var patch P
	if err := decodeJSON(r, &patch, false); err != nil {
		h.fail(w, r, err)
		return
	}

	userID := userFromContext(r.Context()).ID
	rec, err := h.c.Update(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(r.Context(), userID, changeUpdated, rec)
	h.writeItem(w, http.StatusOK, rec, "Updated successfully")
}

func (h *resource[R, PR, P]) remove(w http.ResponseWriter, r *http.Request) {
	userID := userFromContext(r.Context()).ID
	rec, err := h.c.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(r.Context(), userID, changeDeleted, rec)
	writeOK(w, http.StatusOK, nil, "Deleted successfully")
}

// modify runs an action route: fn mutates the stored record.
func (h *resource[R, PR, P]) modify(w http.ResponseWriter, r *http.Request, change string, fn func(rec PR) error) {
	userID := userFromContext(r.Context()).ID
	rec, err := h.c.Modify(r.Context(), userID, chi.URLParam(r, "id"), fn)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.changed(r.Context(), userID, change, rec)
	h.writeItem(w, http.StatusOK, rec, "")
}

func (h *resource[R, PR, P]) changed(ctx context.Context, userID, change string, rec R) {
	if h.publish != nil {
		h.publish(ctx, userID, change, rec)
	}
}

func (h *resource[R, PR, P]) writeItem(w http.ResponseWriter, status int, rec R, message string) {
	writeOK(w, status, map[string]any{h.itemField: rec}, message)
}

func (h *resource[R, PR, P]) fail(w http.ResponseWriter, r *http.Request, err error) {
	if writeServiceError(w, err) {
		h.s.log.Error(r.Context(), "request failed", "collection", h.c.Name(), "err", err)
	}
}
