package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/repositories/cache"
	"github.com/dmitrijs2005/studyctl/internal/client/state"
	"github.com/dmitrijs2005/studyctl/internal/client/store"
	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/obs"
	"github.com/dmitrijs2005/studyctl/internal/query"
)

const (
	settingsPath       = "/focus/settings"
	keySettings        = "timerSettings"
	keySettingsPending = "timerSettingsPending"
)

var focusConfig = store.Config{
	Name:        "focus",
	Path:        "/focus/sessions",
	CacheKey:    "pomodoroSessions",
	ListField:   "sessions",
	ItemField:   "session",
	DefaultSort: query.SortStarted,
}

type FocusStats struct {
	TotalSessions     int `json:"totalSessions"`
	CompletedSessions int `json:"completedSessions"`
	// TotalFocusTime is the length of completed work sessions in minutes.
	TotalFocusTime       int `json:"totalFocusTime"`
	AverageSessionLength int `json:"averageSessionLength"`
	CurrentStreak        int `json:"currentStreak"`
	LongestStreak        int `json:"longestStreak"`
	SessionsToday        int `json:"sessionsToday"`
	SessionsThisWeek     int `json:"sessionsThisWeek"`
	ProductivityScore    int `json:"productivityScore"`
}

// FocusService manages pomodoro sessions and the timer settings document.
// Settings follow the same contract as records: remote first, the cached
// copy (or the defaults) when the remote is unavailable, and local changes
// pushed on the next Flush.
type FocusService struct {
	*store.Store[models.FocusSession, *models.FocusSession]

	remote  client.Remote
	bucket  *cache.Bucket
	tracker *state.Tracker
	metrics obs.Recorder
	log     logging.Logger
	now     func() time.Time
}

func NewFocusService(remote client.Remote, repo cache.Repository, opts store.Options) *FocusService {
	if opts.Tracker == nil {
		opts.Tracker = state.NewTracker(opts.Now)
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &FocusService{
		Store:   store.New[models.FocusSession, *models.FocusSession](focusConfig, remote, repo, opts),
		remote:  remote,
		bucket:  cache.NewBucket(repo, focusConfig.Name),
		tracker: opts.Tracker,
		metrics: obs.OrNop(opts.Metrics),
		log:     log.With("collection", focusConfig.Name),
		now:     nowOr(opts.Now),
	}
}

// Start records a new session of kind typ lasting duration minutes.
func (s *FocusService) Start(ctx context.Context, typ string, duration int) (*models.FocusSession, error) {
	return s.Create(ctx, models.FocusSession{Type: typ, Duration: duration, StartedAt: s.now()})
}

// Complete marks session id finished through PATCH /focus/sessions/{id}/complete.
func (s *FocusService) Complete(ctx context.Context, id, notes string) (*models.FocusSession, error) {
	var body any
	if notes != "" {
		body = map[string]string{"notes": notes}
	}
	return s.Act(ctx, id, http.MethodPatch, "complete", body, func(fs *models.FocusSession) {
		fs.Complete(s.now(), notes)
	})
}

// Settings returns the timer settings. Unsynced local settings are pushed
// first.
func (s *FocusService) Settings(ctx context.Context) (models.TimerSettings, error) {
	if err := s.syncSettings(ctx); err != nil {
		if s.degrade(ctx, "settings", err) {
			return s.localSettings(ctx)
		}
		return models.TimerSettings{}, err
	}

	env, err := s.call(ctx, http.MethodGet, settingsPath, nil)
	if err != nil {
		if s.degrade(ctx, "settings", err) {
			return s.localSettings(ctx)
		}
		return models.TimerSettings{}, err
	}
	return s.keepSettings(ctx, env)
}

// UpdateSettings applies patch. When the remote is unavailable the change
// is kept locally and pushed later.
func (s *FocusService) UpdateSettings(ctx context.Context, patch models.TimerSettingsPatch) (models.TimerSettings, error) {
	if s.settingsPending(ctx) {
		return s.updateLocalSettings(ctx, patch)
	}

	env, err := s.call(ctx, http.MethodPut, settingsPath, patch)
	if err != nil {
		if s.degrade(ctx, "update settings", err) {
			return s.updateLocalSettings(ctx, patch)
		}
		return models.TimerSettings{}, err
	}
	return s.keepSettings(ctx, env)
}

// Flush pushes unsynced settings, then replays queued session writes.
func (s *FocusService) Flush(ctx context.Context) (store.FlushResult, error) {
	if err := s.syncSettings(ctx); err != nil {
		return store.FlushResult{}, err
	}
	return s.Store.Flush(ctx)
}

func (s *FocusService) Stats(ctx context.Context, from, to time.Time) (FocusStats, error) {
	res, err := s.All(ctx)
	if err != nil {
		return FocusStats{}, err
	}
	sessions := make([]models.FocusSession, 0, len(res.Items))
	for _, fs := range res.Items {
		if query.InRange(fs.StartedAt, from, to) {
			sessions = append(sessions, fs)
		}
	}
	return ComputeFocusStats(sessions, s.now()), nil
}

// ComputeFocusStats derives streaks from the days holding a completed work
// session. SessionsThisWeek covers the trailing seven days.
func ComputeFocusStats(sessions []models.FocusSession, now time.Time) FocusStats {
	st := FocusStats{TotalSessions: len(sessions)}
	today, week := query.StartOfDay(now), now.AddDate(0, 0, -7)

	var (
		completedMinutes int
		workDays         []time.Time
	)
	for _, fs := range sessions {
		started := fs.StartedAt.In(now.Location())
		if query.StartOfDay(started).Equal(today) {
			st.SessionsToday++
		}
		if !started.Before(week) {
			st.SessionsThisWeek++
		}
		if !fs.Completed {
			continue
		}
		st.CompletedSessions++
		completedMinutes += fs.Duration
		if fs.Type == models.SessionWork {
			st.TotalFocusTime += fs.Duration
			workDays = append(workDays, started)
		}
	}

	st.AverageSessionLength = roundDiv(completedMinutes, st.CompletedSessions)
	st.ProductivityScore = roundDiv(100*st.CompletedSessions, st.TotalSessions)
	st.CurrentStreak, st.LongestStreak = query.Streaks(workDays, now)
	return st
}

func (s *FocusService) call(ctx context.Context, method, path string, body any) (*client.Envelope, error) {
	env, err := s.remote.Do(ctx, method, path, nil, body, nil)
	if err == nil || (client.KindOf(err) != "" && !client.Fallback(err)) {
		s.tracker.RecordSuccess()
	}
	return env, err
}

func (s *FocusService) degrade(ctx context.Context, op string, err error) bool {
	if !client.Fallback(err) || ctx.Err() != nil {
		return false
	}
	s.tracker.RecordFailure(err)
	s.metrics.CacheFallback(focusConfig.Name)
	s.log.Warn(ctx, "remote unavailable, using local cache", "op", op, "err", err)
	return true
}

// keepSettings decodes settings from env and caches them. Empty data means
// the user has none yet.
func (s *FocusService) keepSettings(ctx context.Context, env *client.Envelope) (models.TimerSettings, error) {
	ts := models.DefaultTimerSettings()
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := client.DecodeItem(env.Data, "settings", &ts); err != nil {
			return models.TimerSettings{}, &client.APIError{Kind: client.KindTransport, Message: "malformed response data", Err: err}
		}
	}
	err := s.bucket.StoreMany(ctx, map[string]any{keySettings: ts, keySettingsPending: false})
	if err != nil {
		s.log.Warn(ctx, "cache write-through failed", "err", err)
	}
	return ts, nil
}

func (s *FocusService) localSettings(ctx context.Context) (models.TimerSettings, error) {
	ts := models.DefaultTimerSettings()
	if _, err := s.bucket.Load(ctx, keySettings, &ts); err != nil {
		return models.TimerSettings{}, err
	}
	return ts, nil
}

func (s *FocusService) updateLocalSettings(ctx context.Context, patch models.TimerSettingsPatch) (models.TimerSettings, error) {
	ts, err := s.localSettings(ctx)
	if err != nil {
		return models.TimerSettings{}, err
	}
	patch.Apply(&ts)
	if err := s.bucket.StoreMany(ctx, map[string]any{keySettings: ts, keySettingsPending: true}); err != nil {
		return models.TimerSettings{}, err
	}
	return ts, nil
}

func (s *FocusService) settingsPending(ctx context.Context) bool {
	var pending bool
	if _, err := s.bucket.Load(ctx, keySettingsPending, &pending); err != nil {
		return false
	}
	return pending
}

// syncSettings pushes locally changed settings. A validation rejection
// discards the local change.
func (s *FocusService) syncSettings(ctx context.Context) error {
	if !s.settingsPending(ctx) {
		return nil
	}
	ts, err := s.localSettings(ctx)
	if err != nil {
		return err
	}

	env, err := s.call(ctx, http.MethodPut, settingsPath, ts)
	switch {
	case err == nil:
		_, err = s.keepSettings(ctx, env)
		return err
	case !errors.Is(err, client.ErrValidation):
		return err
	}
	s.log.Warn(ctx, "remote rejected local timer settings, discarding", "err", err)
	return s.bucket.Delete(ctx, keySettings, keySettingsPending)
}
