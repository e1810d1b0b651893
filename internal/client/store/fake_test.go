package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/repositories/cache"
	"github.com/dmitrijs2005/studyctl/internal/client/state"
	"github.com/dmitrijs2005/studyctl/internal/query"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

var errRefused = &client.APIError{Kind: client.KindTransport, Err: errors.New("connect: connection refused")}

// fakeNotes is an in-memory notes endpoint speaking the envelope protocol.
type fakeNotes struct {
	mu    sync.Mutex
	down  bool
	fail  map[string]error
	notes []models.Note
	seq   int
	calls []string
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{fail: map[string]error{}}
}

func (f *fakeNotes) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *fakeNotes) failWith(route string, err error) {
	f.mu.Lock()
	f.fail[route] = err
	f.mu.Unlock()
}

func (f *fakeNotes) seed(n models.Note) models.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	n.ID = fmt.Sprintf("n%d", f.seq)
	n.Touch(testNow)
	f.notes = append(f.notes, n)
	return n
}

func (f *fakeNotes) drop(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.index(id); i >= 0 {
		f.notes = append(f.notes[:i], f.notes[i+1:]...)
	}
}

func (f *fakeNotes) all() []models.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Note(nil), f.notes...)
}

func (f *fakeNotes) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeNotes) index(id string) int {
	for i := range f.notes {
		if f.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeNotes) Do(_ context.Context, method, path string, q url.Values, body, _ any) (*client.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	route := method + " " + path
	f.calls = append(f.calls, route)
	if err, ok := f.fail[route]; ok {
		return nil, err
	}
	if f.down {
		return nil, errRefused
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	notFound := &client.APIError{Kind: client.KindNotFound, Status: http.StatusNotFound, Message: "Note not found"}

	if len(parts) == 1 {
		switch method {
		case http.MethodGet:
			p, err := query.FromValues(q)
			if err != nil {
				return nil, &client.APIError{Kind: client.KindValidation, Status: 400, Message: err.Error()}
			}
			items, page := query.Apply(f.notes, p, testNow, query.SortCreated)
			return envelope(map[string]any{"notes": items}, &page)
		case http.MethodPost:
			var n models.Note
			decodeBody(body, &n)
			f.seq++
			n.ID = fmt.Sprintf("n%d", f.seq)
			n.Touch(testNow)
			f.notes = append(f.notes, n)
			return envelope(map[string]any{"note": n}, nil)
		}
	}

	if len(parts) < 2 {
		return nil, &client.APIError{Kind: client.KindValidation, Status: 405, Message: "method not allowed"}
	}
	i := f.index(parts[1])
	if i < 0 {
		return nil, notFound
	}

	if len(parts) == 3 {
		switch parts[2] {
		case "archive":
			f.notes[i].IsArchived = !f.notes[i].IsArchived
			f.notes[i].Touch(testNow)
			return envelope(map[string]any{"note": f.notes[i]}, nil)
		case "duplicate":
			c := f.notes[i].Copy()
			f.seq++
			c.ID = fmt.Sprintf("n%d", f.seq)
			c.Touch(testNow)
			f.notes = append(f.notes, c)
			return envelope(map[string]any{"note": c}, nil)
		}
	}

	switch method {
	case http.MethodGet:
		return envelope(map[string]any{"note": f.notes[i]}, nil)
	case http.MethodPut:
		var p models.NotePatch
		decodeBody(body, &p)
		p.Apply(&f.notes[i])
		f.notes[i].Touch(testNow)
		return envelope(map[string]any{"note": f.notes[i]}, nil)
	case http.MethodDelete:
		f.notes = append(f.notes[:i], f.notes[i+1:]...)
		return envelope(nil, nil)
	}
	return nil, &client.APIError{Kind: client.KindValidation, Status: 405, Message: "method not allowed"}
}

func decodeBody(body, out any) {
	raw, _ := json.Marshal(body)
	_ = json.Unmarshal(raw, out)
}

func envelope(data any, page *query.Page) (*client.Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	env := &client.Envelope{Success: true, Data: raw}
	if page != nil {
		env.Pagination = &client.Pagination{Page: page.Page, Limit: page.Limit, Total: page.Total, TotalPages: page.TotalPages}
	}
	return env, nil
}

type notesStore = Store[models.Note, *models.Note]

func newNotesStore(t *testing.T, remote client.Remote) (*notesStore, *state.Tracker) {
	t.Helper()
	repo, err := cache.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := func() time.Time { return testNow }
	tracker := state.NewTracker(clock)
	s := New[models.Note](Config{
		Name:        "notes",
		Path:        "/notes",
		CacheKey:    "studyControlNotes",
		ListField:   "notes",
		ItemField:   "note",
		DefaultSort: query.SortCreated,
		AllParams:   query.Params{Archived: query.Bool(true)},
	}, remote, repo, Options{Tracker: tracker, Now: clock})
	return s, tracker
}
