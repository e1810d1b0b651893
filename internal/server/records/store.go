package records

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/query"
)

type (
	Notes  = Collection[models.Note, *models.Note, models.NotePatch]
	Tasks  = Collection[models.Task, *models.Task, models.TaskPatch]
	Diary  = Collection[models.DiaryEntry, *models.DiaryEntry, models.DiaryPatch]
	Focus  = Collection[models.FocusSession, *models.FocusSession, models.FocusSessionPatch]
	Clock  = func() time.Time
	IDFunc = func() string
)

// Store holds every collection of the server.
type Store struct {
	Notes    *Notes
	Tasks    *Tasks
	Diary    *Diary
	Focus    *Focus
	Settings *Settings
}

// NewStore builds empty collections. now and newID may be nil.
func NewStore(now Clock, newID IDFunc) *Store {
	return &Store{
		Notes: NewCollection[models.Note, *models.Note, models.NotePatch]("notes", Options[models.Note]{
			DefaultSort: query.SortCreated, Validate: ValidateNote, Now: now, NewID: newID,
		}),
		Tasks: NewCollection[models.Task, *models.Task, models.TaskPatch]("tasks", Options[models.Task]{
			DefaultSort: query.SortCreated, Validate: ValidateTask, Now: now, NewID: newID,
		}),
		Diary: NewCollection[models.DiaryEntry, *models.DiaryEntry, models.DiaryPatch]("diary", Options[models.DiaryEntry]{
			DefaultSort: query.SortDate, Validate: ValidateDiaryEntry, Now: now, NewID: newID,
		}),
		Focus: NewCollection[models.FocusSession, *models.FocusSession, models.FocusSessionPatch]("focus", Options[models.FocusSession]{
			DefaultSort: query.SortStarted, Validate: ValidateFocusSession, Now: now, NewID: newID,
		}),
		Settings: NewSettings(),
	}
}

// Settings keeps one timer settings document per user.
type Settings struct {
	mu     sync.RWMutex
	byUser map[string]models.TimerSettings
}

func NewSettings() *Settings {
	return &Settings{byUser: make(map[string]models.TimerSettings)}
}

// Get returns the user's settings, or the defaults if none were saved.
func (s *Settings) Get(ctx context.Context, userID string) models.TimerSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ts, ok := s.byUser[userID]; ok {
		return ts
	}
	return models.DefaultTimerSettings()
}

func (s *Settings) Update(ctx context.Context, userID string, patch models.TimerSettingsPatch) (models.TimerSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.byUser[userID]
	if !ok {
		ts = models.DefaultTimerSettings()
	}
	patch.Apply(&ts)
	if err := ValidateTimerSettings(&ts); err != nil {
		return models.TimerSettings{}, err
	}
	s.byUser[userID] = ts
	return ts, nil
}
