package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	prompt() string

	Register(ctx context.Context, args []string) error
	Login(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	ResetPassword(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Sync(ctx context.Context) error
	Dismiss(ctx context.Context) error

	Notes(ctx context.Context, args []string) error
	Tasks(ctx context.Context, args []string) error
	Diary(ctx context.Context, args []string) error
	Focus(ctx context.Context, args []string) error
}

var errLoginRequired = errors.New("please log in first (type 'login')")

const (
	helpAnonymous = "Available commands: register, login, reset, status, help, exit"
	helpSignedIn  = "Available commands: notes, tasks, diary, focus, sync, status, dismiss, whoami, logout, help, exit\n" +
		"  notes  list|add|show|edit|delete|search|stats|tags|pin|archive|dup\n" +
		"  tasks  list|add|show|edit|delete|search|stats|toggle|overdue\n" +
		"  diary  list|add|show|edit|delete|search|stats|mood\n" +
		"  focus  list|start|complete|show|delete|stats|settings\n" +
		"  list filters: page= limit= sort= order= category= tag= priority= mood= type= archived= completed= overdue= from= to= q="
)

// runREPL reads commands from scanner until EOF or "exit", dispatching each
// to a. Command errors are printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, scanner *bufio.Scanner, w io.Writer) {
	for {
		fmt.Fprint(w, a.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]

		if cmd == "exit" || cmd == "quit" {
			fmt.Fprintln(w, "Bye!")
			return
		}

		if err := dispatch(ctx, a, cmd, args, w); err != nil {
			fmt.Fprintln(w, "error:", err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string, w io.Writer) error {
	switch cmd {
	case "help", "?":
		if a.isLoggedIn() {
			fmt.Fprintln(w, helpSignedIn)
		} else {
			fmt.Fprintln(w, helpAnonymous)
		}
		return nil
	case "register":
		return a.Register(ctx, args)
	case "login":
		return a.Login(ctx, args)
	case "reset":
		return a.ResetPassword(ctx, args)
	case "status":
		return a.Status(ctx)
	}

	if !a.isLoggedIn() {
		switch cmd {
		case "logout", "whoami", "sync", "dismiss", "notes", "n", "tasks", "t", "diary", "d", "focus", "f":
			return errLoginRequired
		}
		return fmt.Errorf("unknown command %q", cmd)
	}

	switch cmd {
	case "logout":
		return a.Logout(ctx)
	case "whoami":
		return a.WhoAmI(ctx)
	case "sync":
		return a.Sync(ctx)
	case "dismiss":
		return a.Dismiss(ctx)
	case "notes", "n":
		return a.Notes(ctx, args)
	case "tasks", "t":
		return a.Tasks(ctx, args)
	case "diary", "d":
		return a.Diary(ctx, args)
	case "focus", "f":
		return a.Focus(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}
