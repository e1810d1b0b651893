package services

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/repositories/cache"
	"github.com/dmitrijs2005/studyctl/internal/client/store"
	"github.com/dmitrijs2005/studyctl/internal/query"
)

var notesConfig = store.Config{
	Name:        "notes",
	Path:        "/notes",
	CacheKey:    "studyControlNotes",
	ListField:   "notes",
	ItemField:   "note",
	DefaultSort: query.SortCreated,
	AllParams:   query.Params{Archived: query.Bool(true)},
}

// NoteStats is computed from the loaded notes. Archived notes count only
// towards Archived.
type NoteStats struct {
	Total               int `json:"total"`
	Archived            int `json:"archived"`
	Pinned              int `json:"pinned"`
	TotalWords          int `json:"totalWords"`
	AverageWordsPerNote int `json:"averageWordsPerNote"`
	TagsCount           int `json:"tagsCount"`
	CategoriesCount     int `json:"categoriesCount"`
	NotesThisWeek       int `json:"notesThisWeek"`
	NotesThisMonth      int `json:"notesThisMonth"`
}

type NotesService struct {
	*store.Store[models.Note, *models.Note]
	now func() time.Time
}

func NewNotesService(remote client.Remote, repo cache.Repository, opts store.Options) *NotesService {
	return &NotesService{
		Store: store.New[models.Note, *models.Note](notesConfig, remote, repo, opts),
		now:   nowOr(opts.Now),
	}
}

// TogglePin flips the pinned flag of note id.
func (s *NotesService) TogglePin(ctx context.Context, id string) (*models.Note, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, models.NotePatch{IsPinned: query.Bool(!n.IsPinned)})
}

// ToggleArchive flips the archived flag through PATCH /notes/{id}/archive.
func (s *NotesService) ToggleArchive(ctx context.Context, id string) (*models.Note, error) {
	return s.Act(ctx, id, http.MethodPatch, "archive", nil, func(n *models.Note) {
		n.SetArchived(!n.IsArchived)
	})
}

// Duplicate copies note id into a new note titled "<title> (Copy)".
func (s *NotesService) Duplicate(ctx context.Context, id string) (*models.Note, error) {
	return s.Derive(ctx, id, "duplicate", models.Note.Copy)
}

// Tags returns the distinct tags of every note, sorted.
func (s *NotesService) Tags(ctx context.Context) ([]string, error) {
	res, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, n := range res.Items {
		tags = append(tags, n.Tags...)
	}
	return distinct(tags), nil
}

func (s *NotesService) Stats(ctx context.Context) (NoteStats, error) {
	res, err := s.All(ctx)
	if err != nil {
		return NoteStats{}, err
	}
	return ComputeNoteStats(res.Items, s.now()), nil
}

func ComputeNoteStats(notes []models.Note, now time.Time) NoteStats {
	var (
		st         NoteStats
		tags, cats []string
	)
	week, month := query.StartOfWeek(now), query.StartOfMonth(now)

	for _, n := range notes {
		if n.IsArchived {
			st.Archived++
			continue
		}
		st.Total++
		if n.IsPinned {
			st.Pinned++
		}
		st.TotalWords += query.WordCount(n.Content)
		tags = append(tags, n.Tags...)
		if n.Category != "" {
			cats = append(cats, n.Category)
		}
		if !n.CreatedAt.Before(week) {
			st.NotesThisWeek++
		}
		if !n.CreatedAt.Before(month) {
			st.NotesThisMonth++
		}
	}

	st.AverageWordsPerNote = roundDiv(st.TotalWords, st.Total)
	st.TagsCount = len(distinct(tags))
	st.CategoriesCount = len(distinct(cats))
	return st
}

// distinct returns the unique values of s, compared case-insensitively and
// sorted; the first spelling seen wins.
func distinct(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	out := make([]string, 0, len(s))
	for _, v := range s {
		k := strings.ToLower(strings.TrimSpace(v))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}

// roundDiv is a/b rounded half up, 0 when b is 0.
func roundDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (2*a + b) / (2 * b)
}

func nowOr(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
