package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/store"
)

type subcommand func(ctx context.Context, args []string) error

// runSub dispatches "<entity> <sub> args..."; a bare entity lists.
func runSub(ctx context.Context, entity string, subs map[string]subcommand, args []string) error {
	name, rest := "list", args
	if len(args) > 0 {
		name, rest = strings.ToLower(args[0]), args[1:]
	}
	fn, ok := subs[name]
	if !ok {
		names := make([]string, 0, len(subs))
		for n := range subs {
			names = append(names, n)
		}
		slices.Sort(names)
		return fmt.Errorf("%s: unknown subcommand %q (want %s)", entity, name, strings.Join(names, ", "))
	}
	return fn(ctx, rest)
}

func needID(args []string) (string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", errors.New("missing record id")
	}
	return args[0], nil
}

// printPage renders one result page as a table. row returns tab-separated
// cells matching header.
func printPage[T any](w io.Writer, res store.Result[T], header string, row func(T) string) error {
	if len(res.Items) == 0 {
		fmt.Fprintln(w, "nothing found")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, header)
		for _, it := range res.Items {
			fmt.Fprintln(tw, row(it))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	pg := res.Page
	footer := fmt.Sprintf("page %d/%d, %d total", max(pg.Page, 1), max(pg.TotalPages, 1), pg.Total)
	if res.Cached {
		footer += " (from local cache)"
	}
	fmt.Fprintln(w, footer)
	return nil
}

// printFields prints aligned "label  value" lines, skipping empty values.
func printFields(w io.Writer, kv ...string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", kv[i], kv[i+1])
	}
	return tw.Flush()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmtTime(*t)
}

func flags(pairs ...any) string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if on, _ := pairs[i+1].(bool); on {
			out = append(out, pairs[i].(string))
		}
	}
	return strings.Join(out, ",")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// keep returns cur when in is blank, else in. Used by edit prompts.
func keep(in, cur string) *string {
	if in == "" || in == cur {
		return nil
	}
	return &in
}

func (a *App) written(kind, id string, pending bool) {
	if pending {
		a.printf("%s %s saved locally; it will be sent when the server is reachable\n", kind, id)
		return
	}
	a.printf("%s %s saved\n", kind, id)
}
