package records

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/query"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*Store, *testClock) {
	clock := &testClock{t: time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)}
	n := 0
	return NewStore(clock.Now, func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}), clock
}

func TestCollection_CreateAssignsIDAndDerivedFields(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	offline := clock.t.Add(-time.Hour)
	n, err := s.Notes.Create(ctx, "u1", models.Note{
		Base:    models.Base{ID: "local-01J", CreatedAt: offline, Pending: true},
		Title:   "Graphs",
		Content: "breadth first search",
	})
	require.NoError(t, err)

	assert.Equal(t, "id-1", n.ID)
	assert.False(t, n.Pending)
	assert.Equal(t, offline, n.CreatedAt, "client creation time is kept")
	assert.Equal(t, clock.t, n.UpdatedAt)
	assert.Equal(t, 3, n.WordCount)
	assert.Equal(t, []string{}, n.Tags)

	_, err = s.Notes.Create(ctx, "u1", models.Note{Title: "  "})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 1, s.Notes.Count("u1"))
}

func TestCollection_UsersAreIsolated(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	n, err := s.Notes.Create(ctx, "u1", models.Note{Title: "mine"})
	require.NoError(t, err)

	_, err = s.Notes.Get(ctx, "u2", n.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Notes.Delete(ctx, "u2", n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	items, page := s.Notes.List(ctx, "u2", query.Params{})
	assert.Empty(t, items)
	assert.Equal(t, 0, page.Total)
}

func TestCollection_ListAppliesQuery(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	for i, title := range []string{"alpha", "beta", "gamma"} {
		_, err := s.Notes.Create(ctx, "u1", models.Note{Title: title, Tags: []string{"t" + fmt.Sprint(i%2)}})
		require.NoError(t, err)
		clock.advance(time.Minute)
	}
	_, err := s.Notes.Create(ctx, "u1", models.Note{Title: "hidden", IsArchived: true})
	require.NoError(t, err)

	items, page := s.Notes.List(ctx, "u1", query.Params{})
	require.Len(t, items, 3, "archived notes are hidden by default")
	assert.Equal(t, "gamma", items[0].Title, "newest first")
	assert.Equal(t, 3, page.Total)

	items, _ = s.Notes.List(ctx, "u1", query.Params{Archived: query.Bool(true)})
	assert.Len(t, items, 4)

	items, page = s.Notes.List(ctx, "u1", query.Params{Tags: []string{"t0"}, SortBy: query.SortTitle, SortOrder: query.Asc, Limit: 1, Page: 2})
	require.Len(t, items, 1)
	assert.Equal(t, "gamma", items[0].Title)
	assert.Equal(t, query.Page{Page: 2, Limit: 1, Total: 2, TotalPages: 2}, page)
}

func TestCollection_UpdateAndModify(t *testing.T) {
	s, clock := newTestStore()
	ctx := context.Background()

	task, err := s.Tasks.Create(ctx, "u1", models.Task{Title: "read"})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityMedium, task.Priority)
	assert.Equal(t, models.StatusPending, task.Status)

	clock.advance(time.Minute)
	high := models.PriorityHigh
	task, err = s.Tasks.Update(ctx, "u1", task.ID, models.TaskPatch{Priority: &high})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, clock.t, task.UpdatedAt)

	bogus := "urgent"
	_, err = s.Tasks.Update(ctx, "u1", task.ID, models.TaskPatch{Priority: &bogus})
	assert.ErrorIs(t, err, ErrValidation)
	got, err := s.Tasks.Get(ctx, "u1", task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PriorityHigh, got.Priority, "rejected update leaves the record alone")

	task, err = s.Tasks.Modify(ctx, "u1", task.ID, func(t *models.Task) error {
		t.Toggle(clock.t)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, task.Completed)
	assert.Equal(t, models.StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)

	_, err = s.Tasks.Update(ctx, "u1", "missing", models.TaskPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCollection_Delete(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	a, err := s.Focus.Create(ctx, "u1", models.FocusSession{Duration: 25})
	require.NoError(t, err)
	b, err := s.Focus.Create(ctx, "u1", models.FocusSession{Type: models.SessionShortBreak, Duration: 5})
	require.NoError(t, err)

	removed, err := s.Focus.Delete(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, removed.ID)

	items, _ := s.Focus.List(ctx, "u1", query.Params{})
	require.Len(t, items, 1)
	assert.Equal(t, b.ID, items[0].ID)

	_, err = s.Focus.Delete(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"diary without content", ValidateDiaryEntry(&models.DiaryEntry{Title: "x", Date: "2026-01-01"})},
		{"diary bad mood", ValidateDiaryEntry(&models.DiaryEntry{Title: "x", Content: "y", Date: "2026-01-01", Mood: "meh"})},
		{"diary bad date", ValidateDiaryEntry(&models.DiaryEntry{Title: "x", Content: "y", Date: "yesterday"})},
		{"focus bad type", ValidateFocusSession(&models.FocusSession{Type: "nap", Duration: 5})},
		{"focus zero duration", ValidateFocusSession(&models.FocusSession{Type: models.SessionWork})},
		{"note long tag", ValidateNote(&models.Note{Title: "x", Tags: []string{"0123456789012345678901234567890"}})},
		{"settings zero work", ValidateTimerSettings(&models.TimerSettings{ShortBreakDuration: 5, LongBreakDuration: 15, SessionsUntilLongBreak: 4})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, ErrValidation)
		})
	}

	ok := models.DefaultTimerSettings()
	assert.NoError(t, ValidateTimerSettings(&ok))
}

func TestSettings(t *testing.T) {
	s := NewSettings()
	ctx := context.Background()

	assert.Equal(t, models.DefaultTimerSettings(), s.Get(ctx, "u1"))

	work := 50
	got, err := s.Update(ctx, "u1", models.TimerSettingsPatch{WorkDuration: &work})
	require.NoError(t, err)
	assert.Equal(t, 50, got.WorkDuration)
	assert.Equal(t, 5, got.ShortBreakDuration)
	assert.Equal(t, got, s.Get(ctx, "u1"))
	assert.Equal(t, models.DefaultTimerSettings(), s.Get(ctx, "u2"))

	zero := 0
	_, err = s.Update(ctx, "u1", models.TimerSettingsPatch{WorkDuration: &zero})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 50, s.Get(ctx, "u1").WorkDuration)
}
