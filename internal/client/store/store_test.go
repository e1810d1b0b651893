package store

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/ids"
	"github.com/dmitrijs2005/studyctl/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestCreate_WritesThrough(t *testing.T) {
	remote := newFakeNotes()
	s, tracker := newNotesStore(t, remote)
	ctx := context.Background()

	got, err := s.Create(ctx, models.Note{Title: "Exam plan", Content: "revise chapters one to four"})
	require.NoError(t, err)
	assert.Equal(t, "n1", got.ID)
	assert.False(t, got.Pending)
	assert.Equal(t, 5, got.WordCount)

	cached, err := s.Cached(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)

	want, _ := json.Marshal(got)
	have, _ := json.Marshal(cached[0])
	assert.JSONEq(t, string(want), string(have))
	assert.False(t, tracker.Snapshot().Offline)
}

func TestCreate_FallbackRoundTrip(t *testing.T) {
	remote := newFakeNotes()
	remote.setDown(true)
	s, tracker := newNotesStore(t, remote)
	ctx := context.Background()

	got, err := s.Create(ctx, models.Note{Title: "x", Content: "three word body"})
	require.NoError(t, err)
	assert.True(t, ids.IsLocal(got.ID))
	assert.True(t, got.Pending)
	assert.Equal(t, 3, got.WordCount)
	assert.Equal(t, testNow, got.CreatedAt)

	res, err := s.List(ctx, query.Params{})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	require.Len(t, res.Items, 1)
	assert.Equal(t, got.ID, res.Items[0].ID)
	assert.Equal(t, 3, res.Items[0].WordCount)

	n, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, tracker.Snapshot().Offline)
}

func TestOfflineCreateThenReconnect(t *testing.T) {
	remote := newFakeNotes()
	s, tracker := newNotesStore(t, remote)
	ctx := context.Background()

	remote.setDown(true)
	local, err := s.Create(ctx, models.Note{Title: "x"})
	require.NoError(t, err)

	res, err := s.List(ctx, query.Params{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, local.ID, res.Items[0].ID)

	remote.setDown(false)
	res, err = s.List(ctx, query.Params{})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "x", res.Items[0].Title)
	assert.Equal(t, "n1", res.Items[0].ID)
	assert.False(t, res.Items[0].Pending)

	require.Len(t, remote.all(), 1)
	n, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, tracker.Snapshot().Offline)

	cached, err := s.Cached(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "n1", cached[0].ID)
}

func TestList_KeepsPendingRecordsWhenFlushStops(t *testing.T) {
	remote := newFakeNotes()
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	remote.setDown(true)
	_, err := s.Create(ctx, models.Note{Title: "offline"})
	require.NoError(t, err)

	remote.setDown(false)
	remote.seed(models.Note{Title: "online"})
	remote.failWith("POST /notes", &client.APIError{Kind: client.KindServer, Status: 500, Message: "boom"})

	res, err := s.List(ctx, query.Params{})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 2, res.Page.Total)

	titles := []string{res.Items[0].Title, res.Items[1].Title}
	assert.ElementsMatch(t, []string{"offline", "online"}, titles)
}

func TestList_DropsRecordsDeletedElsewhere(t *testing.T) {
	remote := newFakeNotes()
	gone := remote.seed(models.Note{Title: "gone elsewhere"})
	kept := remote.seed(models.Note{Title: "kept"})
	shelved := remote.seed(models.Note{Title: "shelved", IsArchived: true})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	_, err := s.All(ctx)
	require.NoError(t, err)

	remote.setDown(true)
	local, err := s.Create(ctx, models.Note{Title: "queued"})
	require.NoError(t, err)

	remote.setDown(false)
	remote.failWith("POST /notes", &client.APIError{Kind: client.KindServer, Status: 500, Message: "boom"})
	remote.drop(gone.ID)
	remote.drop(shelved.ID)

	// A narrowed listing proves nothing about records outside it.
	res, err := s.List(ctx, query.Params{Limit: 1})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	cached, err := s.Cached(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 4)

	res, err = s.List(ctx, query.Params{})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Items, 2)

	cached, err = s.Cached(ctx)
	require.NoError(t, err)
	var titles []string
	for _, n := range cached {
		titles = append(titles, n.Title)
	}
	assert.ElementsMatch(t, []string{kept.Title, shelved.Title, local.Title}, titles,
		"archived notes are outside the default listing and pending ones are unsynced")

	remote.setDown(true)
	res, err = s.List(ctx, query.Params{})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	for _, n := range res.Items {
		assert.NotEqual(t, gone.ID, n.ID)
	}
}

func TestUpdate_NotFoundIsSwallowed(t *testing.T) {
	remote := newFakeNotes()
	n := remote.seed(models.Note{Title: "shared"})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	res, err := s.List(ctx, query.Params{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	remote.drop(n.ID)

	got, err := s.Update(ctx, n.ID, models.NotePatch{Title: strp("edited")})
	require.NoError(t, err)
	assert.Nil(t, got)

	cached, err := s.Cached(ctx)
	require.NoError(t, err)
	assert.Empty(t, cached)

	res, err = s.List(ctx, query.Params{})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestDelete_NotFoundIsSilent(t *testing.T) {
	remote := newFakeNotes()
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "n42"))
}

func TestUnauthorized_NeverFallsBack(t *testing.T) {
	remote := newFakeNotes()
	s, tracker := newNotesStore(t, remote)
	ctx := context.Background()

	remote.seed(models.Note{Title: "mine"})
	_, err := s.List(ctx, query.Params{})
	require.NoError(t, err)

	unauthorized := &client.APIError{Kind: client.KindUnauthorized, Status: http.StatusUnauthorized, Message: "Invalid token"}
	remote.failWith("GET /notes", unauthorized)
	remote.failWith("POST /notes", unauthorized)

	_, err = s.List(ctx, query.Params{})
	require.ErrorIs(t, err, client.ErrUnauthorized)

	_, err = s.Create(ctx, models.Note{Title: "new"})
	require.ErrorIs(t, err, client.ErrUnauthorized)

	n, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, tracker.Snapshot().Offline)
}

func TestErrorsSurfacedToCaller(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"validation", &client.APIError{Kind: client.KindValidation, Status: 400, Message: "Title is required"}, client.ErrValidation},
		{"rate limited", &client.APIError{Kind: client.KindRateLimited, Status: 429}, client.ErrRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeNotes()
			remote.failWith("POST /notes", tt.err)
			s, _ := newNotesStore(t, remote)

			_, err := s.Create(context.Background(), models.Note{})
			require.ErrorIs(t, err, tt.want)

			cached, err := s.Cached(context.Background())
			require.NoError(t, err)
			assert.Empty(t, cached)
		})
	}
}

func TestList_FallbackAppliesQuerySemantics(t *testing.T) {
	remote := newFakeNotes()
	remote.seed(models.Note{Title: "beta", Content: "go channels", Tags: []string{"go"}})
	remote.seed(models.Note{Title: "Alpha", Content: "rust", Tags: []string{"rust"}})
	remote.seed(models.Note{Title: "gamma", Content: "more go here", Tags: []string{"go"}, IsPinned: true})
	remote.seed(models.Note{Title: "delta", Content: "old", Tags: []string{"go"}, IsArchived: true})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	_, err := s.All(ctx)
	require.NoError(t, err)

	remote.setDown(true)

	res, err := s.List(ctx, query.Params{Tags: []string{"GO"}, SortBy: query.SortTitle, SortOrder: query.Asc})
	require.NoError(t, err)
	assert.True(t, res.Cached)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "gamma", res.Items[0].Title, "pinned first")
	assert.Equal(t, "beta", res.Items[1].Title)

	res, err = s.List(ctx, query.Params{SortBy: query.SortTitle, SortOrder: query.Asc, Limit: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "beta", res.Items[0].Title)
	assert.Equal(t, query.Page{Page: 2, Limit: 2, Total: 3, TotalPages: 2}, res.Page)

	res, err = s.Search(ctx, "CHANNELS", query.Params{})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "beta", res.Items[0].Title)

	res, err = s.List(ctx, query.Params{Archived: query.Bool(true)})
	require.NoError(t, err)
	assert.Len(t, res.Items, 4)
}

func TestGet(t *testing.T) {
	remote := newFakeNotes()
	n := remote.seed(models.Note{Title: "one"})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	got, err := s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Title)

	remote.setDown(true)
	got, err = s.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Title)

	_, err = s.Get(ctx, "n99")
	require.ErrorIs(t, err, ErrNotCached)

	remote.setDown(false)
	remote.drop(n.ID)
	_, err = s.Get(ctx, n.ID)
	require.ErrorIs(t, err, client.ErrNotFound)
	cached, err := s.Cached(ctx)
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestOfflineEditsCoalesceIntoOneCreate(t *testing.T) {
	remote := newFakeNotes()
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	remote.setDown(true)
	n, err := s.Create(ctx, models.Note{Title: "draft", Content: "a"})
	require.NoError(t, err)
	n, err = s.Update(ctx, n.ID, models.NotePatch{Title: strp("final"), Content: strp("a b")})
	require.NoError(t, err)
	assert.Equal(t, 2, n.WordCount)

	remote.setDown(false)
	res, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Replayed: 1}, res)

	all := remote.all()
	require.Len(t, all, 1)
	assert.Equal(t, "final", all[0].Title)
	assert.NotContains(t, remote.callLog(), "PUT /notes/"+n.ID)
}

func TestDeleteOfPendingCreateNeverReachesRemote(t *testing.T) {
	remote := newFakeNotes()
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	remote.setDown(true)
	n, err := s.Create(ctx, models.Note{Title: "oops"})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, n.ID))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	remote.setDown(false)
	_, err = s.List(ctx, query.Params{})
	require.NoError(t, err)
	assert.Empty(t, remote.all())
}

func TestOfflineUpdateAndDeleteReplay(t *testing.T) {
	remote := newFakeNotes()
	a := remote.seed(models.Note{Title: "a"})
	b := remote.seed(models.Note{Title: "b"})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	_, err := s.All(ctx)
	require.NoError(t, err)

	remote.setDown(true)
	got, err := s.Update(ctx, a.ID, models.NotePatch{Title: strp("a2")})
	require.NoError(t, err)
	assert.True(t, got.Pending)
	require.NoError(t, s.Delete(ctx, b.ID))

	remote.setDown(false)
	// Writes to a record with queued ops are queued behind them.
	_, err = s.Update(ctx, a.ID, models.NotePatch{Content: strp("body")})
	require.NoError(t, err)

	res, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Replayed)

	all := remote.all()
	require.Len(t, all, 1)
	assert.Equal(t, "a2", all[0].Title)
	assert.Equal(t, "body", all[0].Content)

	cached, err := s.Cached(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.False(t, cached[0].Pending)
}

func TestFlush_RejectedOpIsDropped(t *testing.T) {
	remote := newFakeNotes()
	a := remote.seed(models.Note{Title: "a"})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()
	_, err := s.All(ctx)
	require.NoError(t, err)

	remote.setDown(true)
	_, err = s.Update(ctx, a.ID, models.NotePatch{Title: strp("")})
	require.NoError(t, err)

	remote.setDown(false)
	remote.failWith("PUT /notes/"+a.ID, &client.APIError{Kind: client.KindValidation, Status: 400, Message: "Title is required"})

	res, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Dropped: 1}, res)

	cached, err := s.Cached(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.False(t, cached[0].Pending)
}

func TestFlush_ServerErrorsExhaustOp(t *testing.T) {
	remote := newFakeNotes()
	a := remote.seed(models.Note{Title: "a"})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()
	_, err := s.All(ctx)
	require.NoError(t, err)

	remote.setDown(true)
	_, err = s.Update(ctx, a.ID, models.NotePatch{Title: strp("b")})
	require.NoError(t, err)

	// Transport failures do not count against the op.
	for range MaxOpAttempts + 2 {
		_, err = s.Flush(ctx)
		require.ErrorIs(t, err, client.ErrTransport)
	}

	remote.setDown(false)
	remote.failWith("PUT /notes/"+a.ID, &client.APIError{Kind: client.KindServer, Status: 500})
	for i := 1; i <= MaxOpAttempts; i++ {
		res, err := s.Flush(ctx)
		require.ErrorIs(t, err, client.ErrServer)
		if i < MaxOpAttempts {
			assert.Equal(t, 1, res.Remaining)
		} else {
			assert.Equal(t, 1, res.Dropped)
		}
	}

	n, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestActAndDerive_Offline(t *testing.T) {
	remote := newFakeNotes()
	a := remote.seed(models.Note{Title: "a", Content: "x y", Tags: []string{"t"}})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()
	_, err := s.All(ctx)
	require.NoError(t, err)

	got, err := s.Act(ctx, a.ID, http.MethodPatch, "archive", nil, func(n *models.Note) { n.IsArchived = !n.IsArchived })
	require.NoError(t, err)
	assert.True(t, got.IsArchived)
	assert.False(t, got.Pending)

	remote.setDown(true)
	got, err = s.Act(ctx, a.ID, http.MethodPatch, "archive", nil, func(n *models.Note) { n.IsArchived = !n.IsArchived })
	require.NoError(t, err)
	assert.False(t, got.IsArchived)
	assert.True(t, got.Pending)

	dup, err := s.Derive(ctx, a.ID, "duplicate", models.Note.Copy)
	require.NoError(t, err)
	assert.True(t, ids.IsLocal(dup.ID))
	assert.Equal(t, "a (Copy)", dup.Title)
	assert.Equal(t, 2, dup.WordCount)

	res, err := s.List(ctx, query.Params{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
}

func TestAll_ReplacesCacheButKeepsPending(t *testing.T) {
	remote := newFakeNotes()
	a := remote.seed(models.Note{Title: "a"})
	b := remote.seed(models.Note{Title: "b"})
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	_, err := s.All(ctx)
	require.NoError(t, err)

	remote.setDown(true)
	local, err := s.Create(ctx, models.Note{Title: "local"})
	require.NoError(t, err)

	remote.setDown(false)
	remote.failWith("POST /notes", errRefused)
	remote.drop(b.ID)

	res, err := s.All(ctx)
	require.NoError(t, err)
	assert.True(t, res.Cached, "flush hit the outage, so the cache answered")

	delete(remote.fail, "POST /notes")
	res, err = s.All(ctx)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, a.ID, res.Items[0].ID)
	assert.Equal(t, "local", res.Items[1].Title)
	assert.NotEqual(t, local.ID, res.Items[1].ID)
}

func TestPutAndRemove(t *testing.T) {
	remote := newFakeNotes()
	s, _ := newNotesStore(t, remote)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, models.Note{Base: models.Base{ID: "n7"}, Title: "pushed"}))
	cached, err := s.Cached(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)

	remote.setDown(true)
	_, err = s.Update(ctx, "n7", models.NotePatch{Title: strp("mine")})
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, models.Note{Base: models.Base{ID: "n7"}, Title: "theirs"}))
	got, err := s.Get(ctx, "n7")
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Title, "unsynced local edit wins")

	require.NoError(t, s.Remove(ctx, "n7"))
	n, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplayed_CreateEditedInFlight(t *testing.T) {
	s, _ := newNotesStore(t, newFakeNotes())

	local := models.Note{Base: models.Base{ID: "local-1", Pending: true}, Title: "v2"}
	sent := newOp(OpCreate, "local-1", json.RawMessage(`{"id":"local-1","title":"v1"}`), testNow)
	queued := sent
	queued.Body = json.RawMessage(`{"id":"local-1","title":"v2"}`)

	server := models.Note{Base: models.Base{ID: "n1"}, Title: "v1"}
	items, ops := s.replayed([]models.Note{local}, []Op{queued}, 0, sent, &server, testNow)

	require.Len(t, ops, 1)
	assert.Equal(t, OpUpdate, ops[0].Kind)
	assert.Equal(t, "n1", ops[0].RecordID)
	assert.JSONEq(t, `{"id":"n1","title":"v2"}`, string(ops[0].Body))
	require.Len(t, items, 1)
	assert.Equal(t, "n1", items[0].ID)
	assert.Equal(t, "v2", items[0].Title)
	assert.True(t, items[0].Pending)
}

func TestReplayed_CreateDeletedInFlight(t *testing.T) {
	s, _ := newNotesStore(t, newFakeNotes())

	sent := newOp(OpCreate, "local-1", json.RawMessage(`{"title":"v1"}`), testNow)
	server := models.Note{Base: models.Base{ID: "n1"}}
	items, ops := s.replayed(nil, nil, -1, sent, &server, testNow)

	assert.Empty(t, items)
	require.Len(t, ops, 1)
	assert.Equal(t, OpDelete, ops[0].Kind)
	assert.Equal(t, "n1", ops[0].RecordID)
}
