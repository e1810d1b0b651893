package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

var moods = []string{"great", "good", "okay", "bad", "terrible"}

func (a *App) Diary(ctx context.Context, args []string) error {
	return runSub(ctx, "diary", map[string]subcommand{
		"list":   a.listDiary,
		"ls":     a.listDiary,
		"search": a.searchDiary,
		"add":    a.addDiary,
		"show":   a.showDiary,
		"edit":   a.editDiary,
		"delete": a.deleteDiary,
		"rm":     a.deleteDiary,
		"mood":   a.diaryByMood,
		"stats":  a.diaryStats,
	}, args)
}

const diaryHeader = "ID\tDATE\tTITLE\tMOOD\tWORDS\tFLAGS"

func diaryRow(d models.DiaryEntry) string {
	return strings.Join([]string{
		d.ID,
		d.Date,
		truncate(d.Title, 40),
		d.Mood,
		fmt.Sprint(d.WordCount),
		flags("private", d.IsPrivate, "unsynced", d.Pending),
	}, "\t")
}

func (a *App) listDiary(ctx context.Context, args []string) error {
	p, _, err := parseParams(args)
	if err != nil {
		return err
	}
	res, err := a.diary.List(ctx, p)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, diaryHeader, diaryRow)
}

func (a *App) searchDiary(ctx context.Context, args []string) error {
	p, words, err := parseParams(args)
	if err != nil {
		return err
	}
	res, err := a.diary.Search(ctx, strings.Join(words, " "), p)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, diaryHeader, diaryRow)
}

func (a *App) diaryByMood(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: diary mood <%s>", strings.Join(moods, "|"))
	}
	if err := oneOf(args[0], moods...); err != nil {
		return err
	}
	p, _, err := parseParams(args[1:])
	if err != nil {
		return err
	}
	res, err := a.diary.ByMood(ctx, args[0], p)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, diaryHeader, diaryRow)
}

func checkDate(s string) error {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("date: want YYYY-MM-DD, got %q", s)
	}
	return nil
}

func (a *App) addDiary(ctx context.Context, _ []string) error {
	title, err := a.argOrAsk(nil, 0, "Title")
	if err != nil {
		return err
	}
	today := a.now().Format(dateLayout)
	date, err := a.ask(fmt.Sprintf("Date [%s]", today))
	if err != nil {
		return err
	}
	if date == "" {
		date = today
	} else if err := checkDate(date); err != nil {
		return err
	}
	mood, err := a.ask("Mood (" + strings.Join(moods, ", ") + ", optional)")
	if err != nil {
		return err
	}
	if mood != "" && !slices.Contains(moods, mood) {
		return oneOf(mood, moods...)
	}
	content, err := GetMultiline(a.reader, "Entry", a.writer())
	if err != nil {
		return err
	}
	tags, err := GetList(a.reader, "Tags", a.writer())
	if err != nil {
		return err
	}

	d, err := a.diary.Create(ctx, models.DiaryEntry{Title: title, Date: date, Mood: mood, Content: content, Tags: tags})
	if err != nil {
		return err
	}
	a.written("diary entry", d.ID, d.Pending)
	return nil
}

func (a *App) showDiary(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	d, err := a.diary.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := printFields(a.writer(),
		"id", d.ID,
		"date", d.Date,
		"title", d.Title,
		"mood", d.Mood,
		"tags", strings.Join(d.Tags, ", "),
		"words", fmt.Sprint(d.WordCount),
		"flags", flags("private", d.IsPrivate, "unsynced", d.Pending),
		"updated", fmtTime(d.UpdatedAt),
	); err != nil {
		return err
	}
	a.println()
	a.println(d.Content)
	return nil
}

func (a *App) editDiary(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	cur, err := a.diary.Get(ctx, id)
	if err != nil {
		return err
	}

	title, err := a.ask(fmt.Sprintf("Title [%s]", cur.Title))
	if err != nil {
		return err
	}
	mood, err := a.ask(fmt.Sprintf("Mood [%s]", cur.Mood))
	if err != nil {
		return err
	}
	if mood != "" {
		if err := oneOf(mood, moods...); err != nil {
			return err
		}
	}
	content, err := GetMultiline(a.reader, "Entry (empty keeps the current text)", a.writer())
	if err != nil {
		return err
	}

	d, err := a.diary.Update(ctx, id, models.DiaryPatch{
		Title:   keep(title, cur.Title),
		Mood:    keep(mood, cur.Mood),
		Content: keep(content, cur.Content),
	})
	if err != nil {
		return err
	}
	if d == nil {
		a.printf("diary entry %s no longer exists on the server; removed locally\n", id)
		return nil
	}
	a.written("diary entry", d.ID, d.Pending)
	return nil
}

func (a *App) deleteDiary(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	if err := a.diary.Delete(ctx, id); err != nil {
		return err
	}
	a.printf("diary entry %s deleted\n", id)
	return nil
}

func (a *App) diaryStats(ctx context.Context, _ []string) error {
	s, err := a.diary.Stats(ctx)
	if err != nil {
		return err
	}
	var dist []string
	for _, m := range moods {
		if n := s.MoodDistribution[m]; n > 0 {
			dist = append(dist, fmt.Sprintf("%s %d", m, n))
		}
	}
	return printFields(a.writer(),
		"entries", fmt.Sprint(s.TotalEntries),
		"current streak", fmt.Sprintf("%d day(s)", s.CurrentStreak),
		"longest streak", fmt.Sprintf("%d day(s)", s.LongestStreak),
		"words", fmt.Sprint(s.TotalWords),
		"avg words/entry", fmt.Sprint(s.AverageWordsPerEntry),
		"moods", strings.Join(dist, ", "),
		"this week", fmt.Sprint(s.EntriesThisWeek),
		"this month", fmt.Sprint(s.EntriesThisMonth),
	)
}
