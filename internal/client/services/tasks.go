package services

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/repositories/cache"
	"github.com/dmitrijs2005/studyctl/internal/client/store"
	"github.com/dmitrijs2005/studyctl/internal/query"
)

var tasksConfig = store.Config{
	Name:        "tasks",
	Path:        "/tasks",
	CacheKey:    "studyControlTasks",
	ListField:   "tasks",
	ItemField:   "task",
	SearchPath:  "/tasks/search",
	DefaultSort: query.SortCreated,
}

type TaskStats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	CompletionRate int `json:"completionRate"`
	TodayCompleted int `json:"todayCompleted"`
	WeekCompleted  int `json:"weekCompleted"`
	Overdue        int `json:"overdue"`
}

type TasksService struct {
	*store.Store[models.Task, *models.Task]
	now func() time.Time
}

func NewTasksService(remote client.Remote, repo cache.Repository, opts store.Options) *TasksService {
	return &TasksService{
		Store: store.New[models.Task, *models.Task](tasksConfig, remote, repo, opts),
		now:   nowOr(opts.Now),
	}
}

// Toggle flips completion through PATCH /tasks/{id}/toggle.
func (s *TasksService) Toggle(ctx context.Context, id string) (*models.Task, error) {
	return s.Act(ctx, id, http.MethodPatch, "toggle", nil, func(t *models.Task) {
		t.Toggle(s.now())
	})
}

// Overdue lists open tasks past their due date, earliest first.
func (s *TasksService) Overdue(ctx context.Context) (store.Result[models.Task], error) {
	return s.List(ctx, query.Params{Overdue: true, SortBy: query.SortDueDate, SortOrder: query.Asc})
}

func (s *TasksService) Stats(ctx context.Context) (TaskStats, error) {
	res, err := s.All(ctx)
	if err != nil {
		return TaskStats{}, err
	}
	return ComputeTaskStats(res.Items, s.now()), nil
}

// ComputeTaskStats counts completions since midnight (today) and over the
// trailing seven days (week).
func ComputeTaskStats(tasks []models.Task, now time.Time) TaskStats {
	st := TaskStats{Total: len(tasks)}
	today, week := query.StartOfDay(now), now.AddDate(0, 0, -7)

	for _, t := range tasks {
		if t.Overdue(now) {
			st.Overdue++
		}
		if !t.Completed {
			continue
		}
		st.Completed++
		if t.CompletedAt == nil {
			continue
		}
		if !t.CompletedAt.Before(today) {
			st.TodayCompleted++
		}
		if !t.CompletedAt.Before(week) {
			st.WeekCompleted++
		}
	}

	st.Pending = st.Total - st.Completed
	st.CompletionRate = roundDiv(100*st.Completed, st.Total)
	return st
}
