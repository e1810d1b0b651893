package models

import (
	"time"

	"github.com/dmitrijs2005/studyctl/internal/query"
)

const (
	SessionWork       = "work"
	SessionShortBreak = "shortBreak"
	SessionLongBreak  = "longBreak"
)

// FocusSession is one pomodoro interval. Duration is in minutes.
type FocusSession struct {
	Base
	Type        string     `json:"type"`
	Duration    int        `json:"duration"`
	Completed   bool       `json:"completed"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

func (s FocusSession) Match(p query.Params, _ time.Time) bool {
	if p.Completed != nil && s.Completed != *p.Completed {
		return false
	}
	return query.MatchEqual(p.Type, s.Type) &&
		query.InRange(s.StartedAt, p.DateFrom, p.DateTo) &&
		query.MatchText(p.Search, s.Notes)
}

func (s FocusSession) SortKey(key string) any {
	switch key {
	case query.SortStarted:
		return s.StartedAt
	case query.SortCreated:
		return s.CreatedAt
	case query.SortUpdated:
		return s.UpdatedAt
	}
	return nil
}

func (s FocusSession) Pinned() bool { return false }

func (s *FocusSession) Touch(now time.Time) {
	s.stamp(now)
	if s.Type == "" {
		s.Type = SessionWork
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = s.CreatedAt
	}
	if !s.Completed {
		s.CompletedAt = nil
	}
}

// Complete marks the session finished at now, optionally with notes.
func (s *FocusSession) Complete(now time.Time, notes string) {
	s.Completed = true
	s.CompletedAt = ptr(now)
	if notes != "" {
		s.Notes = notes
	}
	s.Touch(now)
}

type FocusSessionPatch struct {
	Completed   *bool      `json:"completed,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

func (p FocusSessionPatch) Apply(s *FocusSession) {
	if p.Completed != nil {
		s.Completed = *p.Completed
	}
	if p.CompletedAt != nil {
		s.CompletedAt = ptr(*p.CompletedAt)
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
}

// TimerSettings are durations in minutes.
type TimerSettings struct {
	WorkDuration           int  `json:"workDuration"`
	ShortBreakDuration     int  `json:"shortBreakDuration"`
	LongBreakDuration      int  `json:"longBreakDuration"`
	AutoStartBreaks        bool `json:"autoStartBreaks"`
	AutoStartPomodoros     bool `json:"autoStartPomodoros"`
	SessionsUntilLongBreak int  `json:"sessionsUntilLongBreak"`
}

func DefaultTimerSettings() TimerSettings {
	return TimerSettings{
		WorkDuration:           25,
		ShortBreakDuration:     5,
		LongBreakDuration:      15,
		SessionsUntilLongBreak: 4,
	}
}

// TimerSettingsPatch is a partial settings update.
type TimerSettingsPatch struct {
	WorkDuration           *int  `json:"workDuration,omitempty"`
	ShortBreakDuration     *int  `json:"shortBreakDuration,omitempty"`
	LongBreakDuration      *int  `json:"longBreakDuration,omitempty"`
	AutoStartBreaks        *bool `json:"autoStartBreaks,omitempty"`
	AutoStartPomodoros     *bool `json:"autoStartPomodoros,omitempty"`
	SessionsUntilLongBreak *int  `json:"sessionsUntilLongBreak,omitempty"`
}

func (p TimerSettingsPatch) Apply(s *TimerSettings) {
	if p.WorkDuration != nil {
		s.WorkDuration = *p.WorkDuration
	}
	if p.ShortBreakDuration != nil {
		s.ShortBreakDuration = *p.ShortBreakDuration
	}
	if p.LongBreakDuration != nil {
		s.LongBreakDuration = *p.LongBreakDuration
	}
	if p.AutoStartBreaks != nil {
		s.AutoStartBreaks = *p.AutoStartBreaks
	}
	if p.AutoStartPomodoros != nil {
		s.AutoStartPomodoros = *p.AutoStartPomodoros
	}
	if p.SessionsUntilLongBreak != nil {
		s.SessionsUntilLongBreak = *p.SessionsUntilLongBreak
	}
}
