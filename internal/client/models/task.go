package models

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/query"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"

	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// TaskCategories lists the categories the service accepts.
var TaskCategories = []string{"personal", "work", "study", "health", "other"}

type Task struct {
	Base
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Completed     bool       `json:"completed"`
	Priority      string     `json:"priority"`
	Category      string     `json:"category"`
	Status        string     `json:"status,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	EstimatedTime int        `json:"estimatedTime,omitempty"`
	ActualTime    int        `json:"actualTime,omitempty"`
}

// Overdue reports an open task whose due date has passed.
func (t Task) Overdue(now time.Time) bool {
	return !t.Completed && t.DueDate != nil && t.DueDate.Before(now)
}

func (t Task) Match(p query.Params, now time.Time) bool {
	if p.Completed != nil && t.Completed != *p.Completed {
		return false
	}
	if p.Overdue && !t.Overdue(now) {
		return false
	}
	return query.MatchEqual(p.Category, t.Category) &&
		query.MatchEqual(p.Priority, t.Priority) &&
		query.MatchTags(p.Tags, t.Tags) &&
		query.InRange(t.CreatedAt, p.DateFrom, p.DateTo) &&
		query.MatchText(p.Search, t.Title, t.Description, strings.Join(t.Tags, " "))
}

func (t Task) SortKey(key string) any {
	switch key {
	case query.SortCreated:
		return t.CreatedAt
	case query.SortUpdated:
		return t.UpdatedAt
	case query.SortTitle:
		return t.Title
	case query.SortDueDate:
		if t.DueDate == nil {
			return nil
		}
		return *t.DueDate
	case query.SortPriority:
		return PriorityRank(t.Priority)
	}
	return nil
}

func (t Task) Pinned() bool { return false }

func (t *Task) Touch(now time.Time) {
	t.stamp(now)
	t.Tags = foldTags(t.Tags)
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Category == "" {
		t.Category = "other"
	}
	switch {
	case t.Completed:
		t.Status = StatusCompleted
		if t.CompletedAt == nil {
			t.CompletedAt = ptr(now)
		}
	case t.Status == StatusCompleted || t.Status == "":
		t.Status = StatusPending
		t.CompletedAt = nil
	}
}

// Toggle flips completion at now.
func (t *Task) Toggle(now time.Time) {
	t.Completed = !t.Completed
	if t.Completed {
		t.CompletedAt = ptr(now)
	} else {
		t.CompletedAt = nil
	}
	t.Touch(now)
}

// PriorityRank orders priorities low < medium < high.
func PriorityRank(p string) int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

type TaskPatch struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	Completed     *bool      `json:"completed,omitempty"`
	Priority      *string    `json:"priority,omitempty"`
	Category      *string    `json:"category,omitempty"`
	Status        *string    `json:"status,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	Tags          *[]string  `json:"tags,omitempty"`
	EstimatedTime *int       `json:"estimatedTime,omitempty"`
	ActualTime    *int       `json:"actualTime,omitempty"`
}

func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Status != nil {
		t.Status = *p.Status
		t.Completed = t.Status == StatusCompleted
	}
	if p.DueDate != nil {
		t.DueDate = ptr(*p.DueDate)
	}
	if p.Tags != nil {
		t.Tags = *p.Tags
	}
	if p.EstimatedTime != nil {
		t.EstimatedTime = *p.EstimatedTime
	}
	if p.ActualTime != nil {
		t.ActualTime = *p.ActualTime
	}
	if !t.Completed {
		t.CompletedAt = nil
	}
}
