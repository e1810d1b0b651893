package records

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

const (
	maxTitle       = 200
	maxNoteContent = 100000
	maxDiaryBody   = 50000
	maxDescription = 2000
	maxCategory    = 50
	maxTag         = 30
	maxEstimate    = 1440
)

func ValidateNote(n *models.Note) error {
	if err := title(n.Title); err != nil {
		return err
	}
	if utf8.RuneCountInString(n.Content) > maxNoteContent {
		return invalid("content must be at most %d characters", maxNoteContent)
	}
	if utf8.RuneCountInString(n.Category) > maxCategory {
		return invalid("category must be at most %d characters", maxCategory)
	}
	return tags(n.Tags)
}

func ValidateTask(t *models.Task) error {
	if err := title(t.Title); err != nil {
		return err
	}
	if utf8.RuneCountInString(t.Description) > maxDescription {
		return invalid("description must be at most %d characters", maxDescription)
	}
	if !slices.Contains([]string{models.PriorityLow, models.PriorityMedium, models.PriorityHigh}, t.Priority) {
		return invalid("priority must be low, medium or high")
	}
	if !slices.Contains(models.TaskCategories, t.Category) {
		return invalid("category must be one of %s", strings.Join(models.TaskCategories, ", "))
	}
	if !slices.Contains([]string{models.StatusPending, models.StatusInProgress, models.StatusCompleted, models.StatusCancelled}, t.Status) {
		return invalid("invalid status %q", t.Status)
	}
	if t.EstimatedTime < 0 || t.EstimatedTime > maxEstimate {
		return invalid("estimated time must be between 1 and %d minutes", maxEstimate)
	}
	return tags(t.Tags)
}

func ValidateDiaryEntry(d *models.DiaryEntry) error {
	if err := title(d.Title); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(d.Content)); n < 1 || n > maxDiaryBody {
		return invalid("content must be between 1 and %d characters", maxDiaryBody)
	}
	if d.Mood != "" && !slices.Contains(models.Moods, d.Mood) {
		return invalid("mood must be one of %s", strings.Join(models.Moods, ", "))
	}
	if _, err := time.Parse("2006-01-02", d.Date); err != nil {
		return invalid("date must be YYYY-MM-DD")
	}
	return tags(d.Tags)
}

func ValidateFocusSession(s *models.FocusSession) error {
	if !slices.Contains([]string{models.SessionWork, models.SessionShortBreak, models.SessionLongBreak}, s.Type) {
		return invalid("type must be work, shortBreak or longBreak")
	}
	if s.Duration < 1 || s.Duration > maxEstimate {
		return invalid("duration must be between 1 and %d minutes", maxEstimate)
	}
	return nil
}

func ValidateTimerSettings(s *models.TimerSettings) error {
	for _, d := range []int{s.WorkDuration, s.ShortBreakDuration, s.LongBreakDuration} {
		if d < 1 || d > 180 {
			return invalid("durations must be between 1 and 180 minutes")
		}
	}
	if s.SessionsUntilLongBreak < 1 || s.SessionsUntilLongBreak > 12 {
		return invalid("sessions until long break must be between 1 and 12")
	}
	return nil
}

func title(s string) error {
	if n := utf8.RuneCountInString(strings.TrimSpace(s)); n < 1 || n > maxTitle {
		return invalid("title must be between 1 and %d characters", maxTitle)
	}
	return nil
}

func tags(tt []string) error {
	for _, t := range tt {
		if n := utf8.RuneCountInString(t); n < 1 || n > maxTag {
			return invalid("tags must be between 1 and %d characters", maxTag)
		}
	}
	return nil
}
