package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

func (a *App) Tasks(ctx context.Context, args []string) error {
	return runSub(ctx, "tasks", map[string]subcommand{
		"list":    a.listTasks,
		"ls":      a.listTasks,
		"search":  a.searchTasks,
		"add":     a.addTask,
		"show":    a.showTask,
		"edit":    a.editTask,
		"delete":  a.deleteTask,
		"rm":      a.deleteTask,
		"toggle":  a.toggleTask,
		"done":    a.toggleTask,
		"overdue": a.overdueTasks,
		"stats":   a.taskStats,
	}, args)
}

const taskHeader = "ID\tTITLE\tPRIORITY\tSTATUS\tDUE\tFLAGS"

func taskRow(t models.Task) string {
	due := ""
	if t.DueDate != nil {
		due = t.DueDate.Local().Format(dateLayout)
	}
	return strings.Join([]string{
		t.ID,
		truncate(t.Title, 40),
		t.Priority,
		t.Status,
		due,
		flags("done", t.Completed, "unsynced", t.Pending),
	}, "\t")
}

func (a *App) listTasks(ctx context.Context, args []string) error {
	p, _, err := parseParams(args)
	if err != nil {
		return err
	}
	res, err := a.tasks.List(ctx, p)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, taskHeader, taskRow)
}

func (a *App) searchTasks(ctx context.Context, args []string) error {
	p, words, err := parseParams(args)
	if err != nil {
		return err
	}
	res, err := a.tasks.Search(ctx, strings.Join(words, " "), p)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, taskHeader, taskRow)
}

func (a *App) overdueTasks(ctx context.Context, _ []string) error {
	res, err := a.tasks.Overdue(ctx)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, taskHeader, taskRow)
}

func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := parseDayEnd(s)
	if err != nil {
		return nil, fmt.Errorf("due date: want YYYY-MM-DD, got %q", s)
	}
	return &d, nil
}

func oneOf(v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%q is not one of %s", v, strings.Join(allowed, ", "))
}

func (a *App) addTask(ctx context.Context, _ []string) error {
	title, err := a.argOrAsk(nil, 0, "Title")
	if err != nil {
		return err
	}
	desc, err := a.ask("Description (optional)")
	if err != nil {
		return err
	}
	priority, err := a.ask("Priority (low, medium, high) [medium]")
	if err != nil {
		return err
	}
	if priority != "" {
		if err := oneOf(priority, models.PriorityLow, models.PriorityMedium, models.PriorityHigh); err != nil {
			return err
		}
	}
	category, err := a.ask("Category (personal, work, study, health, other) [other]")
	if err != nil {
		return err
	}
	dueLine, err := a.ask("Due date YYYY-MM-DD (optional)")
	if err != nil {
		return err
	}
	due, err := parseDue(dueLine)
	if err != nil {
		return err
	}
	tags, err := GetList(a.reader, "Tags", a.writer())
	if err != nil {
		return err
	}

	t, err := a.tasks.Create(ctx, models.Task{
		Title:       title,
		Description: desc,
		Priority:    priority,
		Category:    category,
		DueDate:     due,
		Tags:        tags,
	})
	if err != nil {
		return err
	}
	a.written("task", t.ID, t.Pending)
	return nil
}

func (a *App) showTask(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	t, err := a.tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	overdue := ""
	if t.Overdue(a.now()) {
		overdue = "yes"
	}
	return printFields(a.writer(),
		"id", t.ID,
		"title", t.Title,
		"description", t.Description,
		"priority", t.Priority,
		"category", t.Category,
		"status", t.Status,
		"due", fmtTimePtr(t.DueDate),
		"overdue", overdue,
		"completed", fmtTimePtr(t.CompletedAt),
		"tags", strings.Join(t.Tags, ", "),
		"unsynced", flags("yes", t.Pending),
		"created", fmtTime(t.CreatedAt),
		"updated", fmtTime(t.UpdatedAt),
	)
}

func (a *App) editTask(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	cur, err := a.tasks.Get(ctx, id)
	if err != nil {
		return err
	}

	title, err := a.ask(fmt.Sprintf("Title [%s]", cur.Title))
	if err != nil {
		return err
	}
	desc, err := a.ask(fmt.Sprintf("Description [%s]", truncate(cur.Description, 30)))
	if err != nil {
		return err
	}
	priority, err := a.ask(fmt.Sprintf("Priority [%s]", cur.Priority))
	if err != nil {
		return err
	}
	if priority != "" {
		if err := oneOf(priority, models.PriorityLow, models.PriorityMedium, models.PriorityHigh); err != nil {
			return err
		}
	}
	status, err := a.ask(fmt.Sprintf("Status [%s]", cur.Status))
	if err != nil {
		return err
	}
	if status != "" {
		if err := oneOf(status, models.StatusPending, models.StatusInProgress, models.StatusCompleted, models.StatusCancelled); err != nil {
			return err
		}
	}
	dueLine, err := a.ask("Due date YYYY-MM-DD (empty keeps)")
	if err != nil {
		return err
	}
	due, err := parseDue(dueLine)
	if err != nil {
		return err
	}

	patch := models.TaskPatch{
		Title:       keep(title, cur.Title),
		Description: keep(desc, cur.Description),
		Priority:    keep(priority, cur.Priority),
		Status:      keep(status, cur.Status),
		DueDate:     due,
	}
	if status == models.StatusCompleted && !cur.Completed {
		done := true
		patch.Completed = &done
	}

	t, err := a.tasks.Update(ctx, id, patch)
	if err != nil {
		return err
	}
	if t == nil {
		a.printf("task %s no longer exists on the server; removed locally\n", id)
		return nil
	}
	a.written("task", t.ID, t.Pending)
	return nil
}

func (a *App) deleteTask(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	if err := a.tasks.Delete(ctx, id); err != nil {
		return err
	}
	a.printf("task %s deleted\n", id)
	return nil
}

func (a *App) toggleTask(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	t, err := a.tasks.Toggle(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		a.printf("task %s no longer exists\n", id)
		return nil
	}
	state := "reopened"
	if t.Completed {
		state = "completed"
	}
	a.printf("task %s %s\n", t.ID, state)
	return nil
}

func (a *App) taskStats(ctx context.Context, _ []string) error {
	s, err := a.tasks.Stats(ctx)
	if err != nil {
		return err
	}
	return printFields(a.writer(),
		"total", fmt.Sprint(s.Total),
		"completed", fmt.Sprint(s.Completed),
		"pending", fmt.Sprint(s.Pending),
		"completion rate", fmt.Sprintf("%d%%", s.CompletionRate),
		"done today", fmt.Sprint(s.TodayCompleted),
		"done this week", fmt.Sprint(s.WeekCompleted),
		"overdue", fmt.Sprint(s.Overdue),
	)
}
