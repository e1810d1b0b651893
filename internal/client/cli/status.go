package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"
)

type collection struct {
	name    string
	pending func(context.Context) (int, error)
	clear   func(context.Context) error
}

func (a *App) collections() []collection {
	return []collection{
		{a.notes.Name(), a.notes.Pending, a.notes.Clear},
		{a.tasks.Name(), a.tasks.Pending, a.tasks.Clear},
		{a.diary.Name(), a.diary.Pending, a.diary.Clear},
		{a.focus.Name(), a.focus.Pending, a.focus.Clear},
	}
}

// Status prints reachability, degraded mode, the session, the push stream
// and the number of queued offline writes per collection.
func (a *App) Status(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	healthErr := a.api.Health(hctx)
	cancel()

	w := tabwriter.NewWriter(a.writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "server\t%s\n", a.config.ServerURL)
	if healthErr != nil {
		fmt.Fprintf(w, "reachable\tno (%v)\n", healthErr)
	} else {
		fmt.Fprintf(w, "reachable\tyes\n")
	}

	snap := a.tracker.Snapshot()
	mode := "online"
	if snap.Offline {
		mode = fmt.Sprintf("offline since %s, %d failed call(s)", snap.LastChange.Local().Format(time.TimeOnly), snap.ConsecutiveFailures)
		if snap.Dismissed {
			mode += ", dismissed"
		}
	}
	fmt.Fprintf(w, "mode\t%s\n", mode)
	if snap.LastError != "" {
		fmt.Fprintf(w, "last error\t%s\n", snap.LastError)
	}

	s := a.session.State()
	if s.IsAuthenticated {
		fmt.Fprintf(w, "session\t%s\n", userLabel(s.User))
	} else {
		fmt.Fprintf(w, "session\tsigned out\n")
	}

	switch {
	case a.bridge.Connected():
		fmt.Fprintf(w, "push\tconnected\n")
	case a.bridge.Err() != nil:
		fmt.Fprintf(w, "push\tgave up: %v\n", a.bridge.Err())
	default:
		fmt.Fprintf(w, "push\tnot connected\n")
	}

	for _, c := range a.collections() {
		n, err := c.pending(ctx)
		if err != nil {
			fmt.Fprintf(w, "queued %s\t? (%v)\n", c.name, err)
			continue
		}
		fmt.Fprintf(w, "queued %s\t%d\n", c.name, n)
	}
	return w.Flush()
}

// Sync replays every queued offline write and restarts the push stream if
// it gave up.
func (a *App) Sync(ctx context.Context) error {
	results := a.flushAll(ctx)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(a.writer(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "collection\treplayed\tdropped\tstill queued")
	for _, name := range names {
		r := results[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", name, r.Replayed, r.Dropped, r.Remaining)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if a.bridge.Err() != nil {
		a.bridge.Start(ctx)
	}
	return nil
}

// Dismiss hides the offline marker until the client goes offline again.
func (a *App) Dismiss(context.Context) error {
	if !a.tracker.Snapshot().Offline {
		a.println("Already online.")
		return nil
	}
	a.tracker.Dismiss()
	a.println("Offline notice dismissed.")
	return nil
}
