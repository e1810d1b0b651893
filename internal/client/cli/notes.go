package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
)

func (a *App) Notes(ctx context.Context, args []string) error {
	return runSub(ctx, "notes", map[string]subcommand{
		"list":    a.listNotes,
		"ls":      a.listNotes,
		"search":  a.searchNotes,
		"add":     a.addNote,
		"show":    a.showNote,
		"edit":    a.editNote,
		"delete":  a.deleteNote,
		"rm":      a.deleteNote,
		"pin":     a.pinNote,
		"archive": a.archiveNote,
		"dup":     a.duplicateNote,
		"tags":    a.noteTags,
		"stats":   a.noteStats,
	}, args)
}

const noteHeader = "ID\tTITLE\tTAGS\tFLAGS\tUPDATED"

func noteRow(n models.Note) string {
	return strings.Join([]string{
		n.ID,
		truncate(n.Title, 40),
		strings.Join(n.Tags, ","),
		flags("pinned", n.IsPinned, "archived", n.IsArchived, "unsynced", n.Pending),
		fmtTime(n.UpdatedAt),
	}, "\t")
}

func (a *App) listNotes(ctx context.Context, args []string) error {
	p, _, err := parseParams(args)
	if err != nil {
		return err
	}
	res, err := a.notes.List(ctx, p)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, noteHeader, noteRow)
}

func (a *App) searchNotes(ctx context.Context, args []string) error {
	p, words, err := parseParams(args)
	if err != nil {
		return err
	}
	res, err := a.notes.Search(ctx, strings.Join(words, " "), p)
	if err != nil {
		return err
	}
	return printPage(a.writer(), res, noteHeader, noteRow)
}

func (a *App) addNote(ctx context.Context, args []string) error {
	title, err := a.argOrAsk(nil, 0, "Title")
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Content", a.writer())
	if err != nil {
		return err
	}
	tags, err := GetList(a.reader, "Tags", a.writer())
	if err != nil {
		return err
	}
	category, err := a.ask("Category (optional)")
	if err != nil {
		return err
	}

	n, err := a.notes.Create(ctx, models.Note{Title: title, Content: content, Tags: tags, Category: category})
	if err != nil {
		return err
	}
	a.written("note", n.ID, n.Pending)
	return nil
}

func (a *App) showNote(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	n, err := a.notes.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := printFields(a.writer(),
		"id", n.ID,
		"title", n.Title,
		"category", n.Category,
		"tags", strings.Join(n.Tags, ", "),
		"flags", flags("pinned", n.IsPinned, "archived", n.IsArchived, "unsynced", n.Pending),
		"words", fmt.Sprint(n.WordCount),
		"created", fmtTime(n.CreatedAt),
		"updated", fmtTime(n.UpdatedAt),
	); err != nil {
		return err
	}
	a.println()
	a.println(n.Content)
	return nil
}

func (a *App) editNote(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	cur, err := a.notes.Get(ctx, id)
	if err != nil {
		return err
	}

	title, err := a.ask(fmt.Sprintf("Title [%s]", cur.Title))
	if err != nil {
		return err
	}
	content, err := GetMultiline(a.reader, "Content (empty keeps the current text)", a.writer())
	if err != nil {
		return err
	}
	tagLine, err := a.ask(fmt.Sprintf("Tags [%s] (comma separated, '-' clears)", strings.Join(cur.Tags, ",")))
	if err != nil {
		return err
	}

	patch := models.NotePatch{Title: keep(title, cur.Title), Content: keep(content, cur.Content)}
	switch tagLine {
	case "":
	case "-":
		patch.Tags = &[]string{}
	default:
		tags := splitList(tagLine)
		patch.Tags = &tags
	}

	n, err := a.notes.Update(ctx, id, patch)
	if err != nil {
		return err
	}
	if n == nil {
		a.printf("note %s no longer exists on the server; removed locally\n", id)
		return nil
	}
	a.written("note", n.ID, n.Pending)
	return nil
}

func (a *App) deleteNote(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	if err := a.notes.Delete(ctx, id); err != nil {
		return err
	}
	a.printf("note %s deleted\n", id)
	return nil
}

func (a *App) pinNote(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	n, err := a.notes.TogglePin(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		a.printf("note %s no longer exists\n", id)
		return nil
	}
	a.printf("note %s %s\n", n.ID, map[bool]string{true: "pinned", false: "unpinned"}[n.IsPinned])
	return nil
}

func (a *App) archiveNote(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	n, err := a.notes.ToggleArchive(ctx, id)
	if err != nil {
		return err
	}
	if n == nil {
		a.printf("note %s no longer exists\n", id)
		return nil
	}
	a.printf("note %s %s\n", n.ID, map[bool]string{true: "archived", false: "restored"}[n.IsArchived])
	return nil
}

func (a *App) duplicateNote(ctx context.Context, args []string) error {
	id, err := needID(args)
	if err != nil {
		return err
	}
	n, err := a.notes.Duplicate(ctx, id)
	if err != nil {
		return err
	}
	a.printf("note %s duplicated as %s (%q)\n", id, n.ID, n.Title)
	return nil
}

func (a *App) noteTags(ctx context.Context, _ []string) error {
	tags, err := a.notes.Tags(ctx)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		a.println("no tags yet")
		return nil
	}
	a.println(strings.Join(tags, ", "))
	return nil
}

func (a *App) noteStats(ctx context.Context, _ []string) error {
	s, err := a.notes.Stats(ctx)
	if err != nil {
		return err
	}
	return printFields(a.writer(),
		"total", fmt.Sprint(s.Total),
		"pinned", fmt.Sprint(s.Pinned),
		"archived", fmt.Sprint(s.Archived),
		"words", fmt.Sprint(s.TotalWords),
		"avg words/note", fmt.Sprint(s.AverageWordsPerNote),
		"tags", fmt.Sprint(s.TagsCount),
		"categories", fmt.Sprint(s.CategoriesCount),
		"this week", fmt.Sprint(s.NotesThisWeek),
		"this month", fmt.Sprint(s.NotesThisMonth),
	)
}
