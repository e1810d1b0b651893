package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

func (a *App) Focus(ctx context.Context, args []string) error {
	return runSub(ctx, "focus", map[string]subcommand{
		"list":     a.listFocus,
		"ls":       a.listFocus,
		"start":    a.startFocus,
		"complete": a.completeFocus,
		"show":     a.showFocus,
		"delete":   a.deleteFocus,
		"rm":       a.deleteFocus,
		"stats":    a.focusStats,
		"settings": a.focusSettings,
	}, args)
}

const focusHeader = "ID\tTYPE\tMINUTES\tSTARTED\tFLAGS"

func focusRow(s models.FocusSession) string {
	return strings.Join([]string{
		s.ID,
		s.Type,
		fmt.Sprint(s.Duration),
		fmtTime(s.StartedAt),
		flags("completed", s.Completed, "unsynced", s.Pending),
	}, "\t")
}

func (a *App) listFocus(ctx context.Context, args []string) error {
	p, _, err := parseParams(args)
	if err != nil {
		return err
	}
	res, err := a.focus.List(ctx, p)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, focusHeader, focusRow)
}

// startFocus records a session: "focus start [work|shortBreak|longBreak] [minutes]".
// The length defaults to the timer settings for that kind.
func (a *App) startFocus(ctx context.Context, args []string) error {
	typ := models.SessionWork
	if len(args) > 0 {
		typ = args[0]
	}
	if err := oneOf(typ, models.SessionWork, models.SessionShortBreak, models.SessionLongBreak); err != nil {
		return err
	}

	var minutes int
	if len(args) > 1 {
		n, err := positive(args[1])
		if err != nil {
			return fmt.Errorf("minutes: %w", err)
		}
		minutes = n
	} else {
		st, err := a.focus.Settings(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case models.SessionShortBreak:
			minutes = st.ShortBreakDuration
		case models.SessionLongBreak:
			minutes = st.LongBreakDuration
		default:
			minutes = st.WorkDuration
		}
	}

	s, err := a.focus.Start(ctx, typ, minutes)
	if err != nil {
		return err
	}
	a.printf("%s session %s started for %d minute(s)\n", s.Type, s.ID, s.Duration)
	if s.Pending {
		a.println("(saved locally; it will be sent when the server is reachable)")
	}
	return nil
}

func (a *App) completeFocus(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	s, err := a.focus.Complete(ctx, id, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if s == nil {
		a.printf("session %s no longer exists\n", id)
		return nil
	}
	a.written("session", s.ID, s.Pending)
	return nil
}

func (a *App) showFocus(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	s, err := a.focus.Get(ctx, id)
	if err != nil {
		return err
	}
	return printFields(a.writer(),
		"id", s.ID,
		"type", s.Type,
		"minutes", fmt.Sprint(s.Duration),
		"started", fmtTime(s.StartedAt),
		"completed", fmtTimePtr(s.CompletedAt),
		"notes", s.Notes,
		"unsynced", flags("yes", s.Pending),
	)
}

func (a *App) deleteFocus(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	if err := a.focus.Delete(ctx, id); err != nil {
		return err
	}
	a.printf("session %s deleted\n", id)
	return nil
}

// focusStats covers the last 30 days unless "from=" / "to=" narrow it.
func (a *App) focusStats(ctx context.Context, args []string) error {
	p, _, err := parseParams(args)
	if err != nil {
		return err
	}
	from, to := p.DateFrom, p.DateTo
	if from.IsZero() && to.IsZero() {
		from = a.now().AddDate(0, 0, -30)
	}

	s, err := a.focus.Stats(ctx, from, to)
	if err != nil {
		return err
	}
	return printFields(a.writer(),
		"sessions", fmt.Sprint(s.TotalSessions),
		"completed", fmt.Sprint(s.CompletedSessions),
		"focus time", (time.Duration(s.TotalFocusTime) * time.Minute).String(),
		"avg length", fmt.Sprintf("%d min", s.AverageSessionLength),
		"current streak", fmt.Sprintf("%d day(s)", s.CurrentStreak),
		"longest streak", fmt.Sprintf("%d day(s)", s.LongestStreak),
		"today", fmt.Sprint(s.SessionsToday),
		"this week", fmt.Sprint(s.SessionsThisWeek),
		"productivity", fmt.Sprintf("%d%%", s.ProductivityScore),
	)
}

// focusSettings shows the timer settings, or updates them from
// key=value arguments: work= short= long= until_long= auto_breaks= auto_pomodoros=.
func (a *App) focusSettings(ctx context.Context, args []string) error {
	var (
		st  models.TimerSettings
		err error
	)
	if len(args) == 0 {
		st, err = a.focus.Settings(ctx)
	} else {
		var patch models.TimerSettingsPatch
		if patch, err = parseSettings(args); err != nil {
			return err
		}
		st, err = a.focus.UpdateSettings(ctx, patch)
	}
	if err != nil {
		return err
	}

	return printFields(a.writer(),
		"work", fmt.Sprintf("%d min", st.WorkDuration),
		"short break", fmt.Sprintf("%d min", st.ShortBreakDuration),
		"long break", fmt.Sprintf("%d min", st.LongBreakDuration),
		"long break every", fmt.Sprintf("%d session(s)", st.SessionsUntilLongBreak),
		"auto-start breaks", strconv.FormatBool(st.AutoStartBreaks),
		"auto-start pomodoros", strconv.FormatBool(st.AutoStartPomodoros),
	)
}

func parseSettings(args []string) (models.TimerSettingsPatch, error) {
	var p models.TimerSettingsPatch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return p, fmt.Errorf("want key=value, got %q", arg)
		}

		var err error
		switch key {
		case "work":
			p.WorkDuration, err = intPtr(value)
		case "short":
			p.ShortBreakDuration, err = intPtr(value)
		case "long":
			p.LongBreakDuration, err = intPtr(value)
		case "until_long":
			p.SessionsUntilLongBreak, err = intPtr(value)
		case "auto_breaks":
			p.AutoStartBreaks, err = boolPtr(value)
		case "auto_pomodoros":
			p.AutoStartPomodoros, err = boolPtr(value)
		default:
			err = fmt.Errorf("unknown setting")
		}
		if err != nil {
			return models.TimerSettingsPatch{}, fmt.Errorf("%s: %w", key, err)
		}
	}
	return p, nil
}

func intPtr(s string) (*int, error) {
	n, err := positive(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
