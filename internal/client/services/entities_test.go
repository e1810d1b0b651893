package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/store"
	"github.com/dmitrijs2005/studyctl/internal/ids"
	"github.com/dmitrijs2005/studyctl/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fake remote ----

type handler func(q url.Values, body json.RawMessage) (any, error)

// fakeRemote answers "METHOD path" routes; unknown routes are 404. Calls
// made while down are not logged.
type fakeRemote struct {
	mu     sync.Mutex
	down   bool
	routes map[string]handler
	calls  []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{routes: map[string]handler{}}
}

func (f *fakeRemote) on(route string, h handler) {
	f.mu.Lock()
	f.routes[route] = h
	f.mu.Unlock()
}

func (f *fakeRemote) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *fakeRemote) called(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == route {
			n++
		}
	}
	return n
}

func (f *fakeRemote) Do(_ context.Context, method, path string, q url.Values, body, out any) (*client.Envelope, error) {
	route := method + " " + path

	f.mu.Lock()
	down, h := f.down, f.routes[route]
	if !down {
		f.calls = append(f.calls, route)
	}
	f.mu.Unlock()

	if down {
		return nil, errDown
	}
	if h == nil {
		return nil, &client.APIError{Kind: client.KindNotFound, Status: http.StatusNotFound, Message: "not found"}
	}

	var raw json.RawMessage
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			return nil, err
		}
	}
	res, err := h(q, raw)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	env := &client.Envelope{Success: true, Data: data}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return env, err
		}
	}
	return env, nil
}

// createdAs decodes the request body into T and assigns it id.
func createdAs[T any](id string, set func(*T, string)) handler {
	return func(_ url.Values, body json.RawMessage) (any, error) {
		var rec T
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, err
		}
		set(&rec, id)
		return rec, nil
	}
}

func entityOpts(clock *fakeClock) store.Options {
	return store.Options{Now: clock.Now}
}

// ---- notes ----

func TestComputeNoteStats(t *testing.T) {
	now := time.Date(2026, 5, 13, 15, 0, 0, 0, time.UTC) // Wednesday
	at := func(y int, m time.Month, d int) models.Base {
		return models.Base{CreatedAt: time.Date(y, m, d, 10, 0, 0, 0, time.UTC)}
	}

	notes := []models.Note{
		{Base: at(2026, 5, 12), Content: "one two three", Tags: []string{"go", "db"}, Category: "work", IsPinned: true},
		{Base: at(2026, 5, 4), Content: "four five", Tags: []string{"Go"}, Category: "work"},
		{Base: at(2026, 4, 30), Content: "six", Tags: []string{"misc"}, Category: "home"},
		{Base: at(2026, 5, 13), Content: "hidden words here", Tags: []string{"archived-tag"}, IsArchived: true},
	}

	st := ComputeNoteStats(notes, now)
	assert.Equal(t, NoteStats{
		Total:               3,
		Archived:            1,
		Pinned:              1,
		TotalWords:          6,
		AverageWordsPerNote: 2,
		TagsCount:           3,
		CategoriesCount:     2,
		NotesThisWeek:       1,
		NotesThisMonth:      2,
	}, st)

	assert.Equal(t, NoteStats{}, ComputeNoteStats(nil, now))
}

func newNotes(t *testing.T) (*NotesService, *fakeRemote, *fakeClock) {
	t.Helper()
	remote, clock := newFakeRemote(), newClock()
	remote.on("POST /notes", createdAs[models.Note]("n1", func(n *models.Note, id string) { n.ID = id }))
	return NewNotesService(remote, openCache(t), entityOpts(clock)), remote, clock
}

func TestNotesService_OfflineVariants(t *testing.T) {
	ctx := context.Background()
	svc, remote, _ := newNotes(t)

	created, err := svc.Create(ctx, models.Note{Title: "Plan", Content: "read chapter four", Tags: []string{"study"}})
	require.NoError(t, err)
	require.Equal(t, "n1", created.ID)
	require.Equal(t, 3, created.WordCount)

	remote.setDown(true)

	pinned, err := svc.TogglePin(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)
	assert.True(t, pinned.Pending)

	dup, err := svc.Duplicate(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, ids.IsLocal(dup.ID))
	assert.Equal(t, "Plan (Copy)", dup.Title)
	assert.False(t, dup.IsPinned)

	archived, err := svc.ToggleArchive(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, archived.IsArchived)
	assert.False(t, archived.IsPinned, "archiving unpins")

	tags, err := svc.Tags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"study"}, tags)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Archived)

	n, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "pin and archive fold into one update, plus the duplicate's create")
}

func TestNotesService_ToggleArchiveRemote(t *testing.T) {
	ctx := context.Background()
	svc, remote, _ := newNotes(t)
	_, err := svc.Create(ctx, models.Note{Title: "Plan"})
	require.NoError(t, err)

	remote.on("PATCH /notes/n1/archive", func(url.Values, json.RawMessage) (any, error) {
		return map[string]any{"note": models.Note{Base: models.Base{ID: "n1"}, Title: "Plan", IsArchived: true}}, nil
	})

	n, err := svc.ToggleArchive(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n.IsArchived)
	assert.False(t, n.Pending)
	assert.Equal(t, 1, remote.called("PATCH /notes/n1/archive"))

	cached, err := svc.Cached(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.True(t, cached[0].IsArchived)
}

// ---- tasks ----

func TestComputeTaskStats(t *testing.T) {
	now := time.Date(2026, 5, 13, 15, 0, 0, 0, time.UTC)
	ts := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tasks := []models.Task{
		{Completed: true, CompletedAt: ts(-time.Hour)},
		{Completed: true, CompletedAt: ts(-72 * time.Hour)},
		{Completed: true, CompletedAt: ts(-10 * 24 * time.Hour)},
		{DueDate: ts(-time.Hour)},
		{DueDate: ts(time.Hour)},
		{Completed: true, DueDate: ts(-time.Hour), CompletedAt: ts(-30 * time.Minute)},
	}

	assert.Equal(t, TaskStats{
		Total:          6,
		Completed:      4,
		Pending:        2,
		CompletionRate: 67,
		TodayCompleted: 2,
		WeekCompleted:  3,
		Overdue:        1,
	}, ComputeTaskStats(tasks, now))
}

func TestTasksService_ToggleOffline(t *testing.T) {
	ctx := context.Background()
	remote, clock := newFakeRemote(), newClock()
	remote.on("POST /tasks", createdAs[models.Task]("t1", func(tk *models.Task, id string) { tk.ID = id }))
	svc := NewTasksService(remote, openCache(t), entityOpts(clock))

	_, err := svc.Create(ctx, models.Task{Title: "Write report", Priority: models.PriorityHigh})
	require.NoError(t, err)

	remote.setDown(true)
	tk, err := svc.Toggle(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, tk.Completed)
	assert.Equal(t, models.StatusCompleted, tk.Status)
	require.NotNil(t, tk.CompletedAt)
	assert.Equal(t, clock.Now(), *tk.CompletedAt)

	tk, err = svc.Toggle(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, tk.Completed)
	assert.Nil(t, tk.CompletedAt)
	assert.Equal(t, models.StatusPending, tk.Status)
}

func TestTasksService_SearchUsesSearchEndpoint(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	var gotQ string
	remote.on("GET /tasks/search", func(q url.Values, _ json.RawMessage) (any, error) {
		gotQ = q.Get("q")
		return []models.Task{{Base: models.Base{ID: "t9"}, Title: "report"}}, nil
	})
	svc := NewTasksService(remote, openCache(t), entityOpts(newClock()))

	res, err := svc.Search(ctx, "report", query.Params{})
	require.NoError(t, err)
	assert.Equal(t, "report", gotQ)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "t9", res.Items[0].ID)
}

// ---- diary ----

func TestComputeDiaryStats(t *testing.T) {
	now := time.Date(2026, 5, 13, 15, 0, 0, 0, time.UTC)
	entry := func(date, mood, content string) models.DiaryEntry {
		d, _ := time.Parse("2006-01-02", date)
		return models.DiaryEntry{Base: models.Base{CreatedAt: d.Add(20 * time.Hour)}, Date: date, Mood: mood, Content: content}
	}

	entries := []models.DiaryEntry{
		entry("2026-05-13", "great", "a b c d"),
		entry("2026-05-12", "good", "a b"),
		entry("2026-05-12", "", "a"),
		entry("2026-05-11", "good", ""),
		entry("2026-05-01", "bad", "a b c"),
		entry("2026-05-02", "okay", "a"),
		entry("2026-05-03", "okay", ""),
		entry("2026-05-04", "okay", ""),
	}

	st := ComputeDiaryStats(entries, now)
	assert.Equal(t, 8, st.TotalEntries)
	assert.Equal(t, 3, st.CurrentStreak)
	assert.Equal(t, 4, st.LongestStreak)
	assert.Equal(t, 11, st.TotalWords)
	assert.Equal(t, 1, st.AverageWordsPerEntry)
	assert.Equal(t, map[string]int{"great": 1, "good": 2, "bad": 1, "okay": 3}, st.MoodDistribution)
	assert.Equal(t, 4, st.EntriesThisWeek)
	assert.Equal(t, 8, st.EntriesThisMonth)
}

func TestComputeDiaryStats_StreakSurvivesUntilTomorrow(t *testing.T) {
	now := time.Date(2026, 5, 13, 8, 0, 0, 0, time.UTC)
	entries := []models.DiaryEntry{{Date: "2026-05-12"}, {Date: "2026-05-11"}}

	st := ComputeDiaryStats(entries, now)
	assert.Equal(t, 2, st.CurrentStreak)

	st = ComputeDiaryStats(entries, now.AddDate(0, 0, 1))
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 2, st.LongestStreak)
}

// ---- focus ----

func TestComputeFocusStats(t *testing.T) {
	now := time.Date(2026, 5, 13, 15, 0, 0, 0, time.UTC)
	sess := func(typ string, dur int, done bool, ago time.Duration) models.FocusSession {
		return models.FocusSession{Type: typ, Duration: dur, Completed: done, StartedAt: now.Add(-ago)}
	}

	sessions := []models.FocusSession{
		sess(models.SessionWork, 25, true, time.Hour),
		sess(models.SessionShortBreak, 5, true, 30*time.Minute),
		sess(models.SessionWork, 25, false, 2*time.Hour),
		sess(models.SessionWork, 50, true, 24*time.Hour),
		sess(models.SessionWork, 25, true, 10*24*time.Hour),
	}

	assert.Equal(t, FocusStats{
		TotalSessions:        5,
		CompletedSessions:    4,
		TotalFocusTime:       100,
		AverageSessionLength: 26,
		CurrentStreak:        2,
		LongestStreak:        2,
		SessionsToday:        3,
		SessionsThisWeek:     4,
		ProductivityScore:    80,
	}, ComputeFocusStats(sessions, now))
}

func TestFocusService_SettingsFallbackAndSync(t *testing.T) {
	ctx := context.Background()
	remote, clock := newFakeRemote(), newClock()

	var (
		mu     sync.Mutex
		server = models.DefaultTimerSettings()
	)
	remote.on("GET /focus/settings", func(url.Values, json.RawMessage) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		return server, nil
	})
	remote.on("PUT /focus/settings", func(_ url.Values, body json.RawMessage) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		var patch models.TimerSettingsPatch
		if err := json.Unmarshal(body, &patch); err != nil {
			return nil, err
		}
		patch.Apply(&server)
		return server, nil
	})
	svc := NewFocusService(remote, openCache(t), entityOpts(clock))

	ts, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, ts.WorkDuration)

	remote.setDown(true)
	work := 50
	ts, err = svc.UpdateSettings(ctx, models.TimerSettingsPatch{WorkDuration: &work})
	require.NoError(t, err)
	assert.Equal(t, 50, ts.WorkDuration)

	ts, err = svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, ts.WorkDuration, "offline read sees the local change")
	assert.Equal(t, 0, remote.called("PUT /focus/settings"), "nothing reached the remote yet")

	remote.setDown(false)
	_, err = svc.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.called("PUT /focus/settings"))

	mu.Lock()
	assert.Equal(t, 50, server.WorkDuration)
	mu.Unlock()

	ts, err = svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, ts.WorkDuration)
	assert.Equal(t, 1, remote.called("PUT /focus/settings"), "settled settings are not pushed again")
}

func TestFocusService_SettingsDefaultsWhenNothingCached(t *testing.T) {
	remote := newFakeRemote()
	remote.setDown(true)
	svc := NewFocusService(remote, openCache(t), entityOpts(newClock()))

	ts, err := svc.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTimerSettings(), ts)
}

func TestFocusService_CompleteOffline(t *testing.T) {
	ctx := context.Background()
	remote, clock := newFakeRemote(), newClock()
	svc := NewFocusService(remote, openCache(t), entityOpts(clock))

	remote.setDown(true)
	fs, err := svc.Start(ctx, models.SessionWork, 25)
	require.NoError(t, err)
	require.True(t, ids.IsLocal(fs.ID))

	clock.Set(clock.Now().Add(25 * time.Minute))
	done, err := svc.Complete(ctx, fs.ID, "deep work")
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.Equal(t, "deep work", done.Notes)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, clock.Now(), *done.CompletedAt)

	n, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "completion folds into the queued create")
}
