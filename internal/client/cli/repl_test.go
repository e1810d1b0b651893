package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	calls    []string
	fail     error
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) prompt() string   { return "> " }

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	return f.fail
}

func (f *fakeExec) Register(_ context.Context, args []string) error {
	return f.record("register", args)
}
func (f *fakeExec) Login(_ context.Context, args []string) error {
	f.loggedIn = true
	return f.record("login", args)
}
func (f *fakeExec) Logout(context.Context) error {
	f.loggedIn = false
	return f.record("logout", nil)
}
func (f *fakeExec) WhoAmI(context.Context) error                      { return f.record("whoami", nil) }
func (f *fakeExec) ResetPassword(_ context.Context, a []string) error { return f.record("reset", a) }
func (f *fakeExec) Status(context.Context) error                      { return f.record("status", nil) }
func (f *fakeExec) Sync(context.Context) error                        { return f.record("sync", nil) }
func (f *fakeExec) Dismiss(context.Context) error                     { return f.record("dismiss", nil) }
func (f *fakeExec) Notes(_ context.Context, a []string) error         { return f.record("notes", a) }
func (f *fakeExec) Tasks(_ context.Context, a []string) error         { return f.record("tasks", a) }
func (f *fakeExec) Diary(_ context.Context, a []string) error         { return f.record("diary", a) }
func (f *fakeExec) Focus(_ context.Context, a []string) error         { return f.record("focus", a) }

func run(t *testing.T, exec *fakeExec, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	sc := bufio.NewScanner(strings.NewReader(strings.Join(lines, "\n")))
	runREPL(context.Background(), exec, sc, &out)
	return out.String()
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	exec := &fakeExec{}
	out := run(t, exec,
		"help",
		"notes list",
		"login alice@example.com",
		"",
		"help",
		"notes list tag=go",
		"t toggle 42",
		"diary stats",
		"focus start work 25",
		"sync",
		"dismiss",
		"whoami",
		"logout",
		"tasks list",
		"foobar",
		"exit",
		"status",
	)

	assert.Equal(t, []string{
		"login alice@example.com",
		"notes list tag=go",
		"tasks toggle 42",
		"diary stats",
		"focus start work 25",
		"sync",
		"dismiss",
		"whoami",
		"logout",
	}, exec.calls)
	assert.Contains(t, out, helpAnonymous)
	assert.Contains(t, out, "notes  list|add")
	assert.Equal(t, 2, strings.Count(out, errLoginRequired.Error()))
	assert.Contains(t, out, `unknown command "foobar"`)
	assert.True(t, strings.HasSuffix(out, "Bye!\n"))
}

func TestRunREPL_ErrorsDoNotStopTheLoop(t *testing.T) {
	exec := &fakeExec{loggedIn: true, fail: errors.New("remote exploded")}
	out := run(t, exec, "notes stats", "tasks stats", "quit")

	assert.Len(t, exec.calls, 2)
	assert.Equal(t, 2, strings.Count(out, "error: remote exploded"))
}

func TestRunREPL_EOFEnds(t *testing.T) {
	exec := &fakeExec{loggedIn: true}
	run(t, exec, "status")
	assert.Equal(t, []string{"status"}, exec.calls)
}
