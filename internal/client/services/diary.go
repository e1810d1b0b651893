package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/repositories/cache"
	"github.com/dmitrijs2005/studyctl/internal/client/store"
	"github.com/dmitrijs2005/studyctl/internal/query"
)

var diaryConfig = store.Config{
	Name:        "diary",
	Path:        "/diary",
	CacheKey:    "studyControlDiary",
	ListField:   "entries",
	ItemField:   "entry",
	SearchPath:  "/diary/search",
	DefaultSort: query.SortDate,
}

type DiaryStats struct {
	TotalEntries         int            `json:"totalEntries"`
	CurrentStreak        int            `json:"currentStreak"`
	LongestStreak        int            `json:"longestStreak"`
	TotalWords           int            `json:"totalWords"`
	AverageWordsPerEntry int            `json:"averageWordsPerEntry"`
	MoodDistribution     map[string]int `json:"moodDistribution"`
	EntriesThisWeek      int            `json:"entriesThisWeek"`
	EntriesThisMonth     int            `json:"entriesThisMonth"`
}

type DiaryService struct {
	*store.Store[models.DiaryEntry, *models.DiaryEntry]
	now func() time.Time
}

func NewDiaryService(remote client.Remote, repo cache.Repository, opts store.Options) *DiaryService {
	return &DiaryService{
		Store: store.New[models.DiaryEntry, *models.DiaryEntry](diaryConfig, remote, repo, opts),
		now:   nowOr(opts.Now),
	}
}

// ByMood lists entries recorded with mood.
func (s *DiaryService) ByMood(ctx context.Context, mood string, p query.Params) (store.Result[models.DiaryEntry], error) {
	p.Mood = mood
	return s.List(ctx, p)
}

func (s *DiaryService) Stats(ctx context.Context) (DiaryStats, error) {
	res, err := s.All(ctx)
	if err != nil {
		return DiaryStats{}, err
	}
	return ComputeDiaryStats(res.Items, s.now()), nil
}

// ComputeDiaryStats derives streaks from each entry's calendar day and the
// weekly and monthly counts from creation times.
func ComputeDiaryStats(entries []models.DiaryEntry, now time.Time) DiaryStats {
	st := DiaryStats{
		TotalEntries:     len(entries),
		MoodDistribution: map[string]int{},
	}
	week, month := query.StartOfWeek(now), query.StartOfMonth(now)

	days := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		days = append(days, e.Day())
		st.TotalWords += query.WordCount(e.Content)
		if e.Mood != "" {
			st.MoodDistribution[e.Mood]++
		}
		if !e.CreatedAt.Before(week) {
			st.EntriesThisWeek++
		}
		if !e.CreatedAt.Before(month) {
			st.EntriesThisMonth++
		}
	}

	st.CurrentStreak, st.LongestStreak = query.Streaks(days, now)
	st.AverageWordsPerEntry = roundDiv(st.TotalWords, st.TotalEntries)
	return st
}
