package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/services"
)

// getSimpleText and getPassword are indirections over the interactive
// input helpers so tests can swap them.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

func (a *App) ask(prompt string) (string, error) {
	return getSimpleText(a.reader, prompt, a.writer())
}

func (a *App) askPassword() (string, error) {
	return getPassword(a.reader, a.writer())
}

// argOrAsk returns args[i] when present, otherwise prompts for it.
func (a *App) argOrAsk(args []string, i int, prompt string) (string, error) {
	if i < len(args) {
		return args[i], nil
	}
	v, err := a.ask(prompt)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(prompt))
	}
	return v, nil
}

// Register creates an account. The service asks for the email address to be
// verified before the first login, so the user stays signed out.
func (a *App) Register(ctx context.Context, args []string) error {
	email, err := a.argOrAsk(args, 0, "Email")
	if err != nil {
		return err
	}
	name, err := a.ask("Name (optional)")
	if err != nil {
		return err
	}
	password, err := a.newPassword()
	if err != nil {
		return err
	}

	u, err := a.session.Register(ctx, name, email, password)
	if err != nil {
		return err
	}
	a.printf("Account %s created. Verify your email address, then log in.\n", userLabel(u))
	return nil
}

func (a *App) newPassword() (string, error) {
	pw, err := a.askPassword()
	if err != nil {
		return "", err
	}
	again, err := a.askPassword()
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errors.New("passwords do not match")
	}
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}

// Login signs in. Rejections are explained, not returned as errors.
func (a *App) Login(ctx context.Context, args []string) error {
	email, err := a.argOrAsk(args, 0, "Email")
	if err != nil {
		return err
	}
	password, err := a.askPassword()
	if err != nil {
		return err
	}

	res, err := a.session.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if !res.OK() {
		a.println("Login failed:", loginMessage(res))
		return nil
	}

	a.printf("Logged in as %s\n", userLabel(res.User))
	a.bridge.Start(ctx)
	return nil
}

func loginMessage(res services.LoginResult) string {
	switch res.Failure {
	case services.FailureInvalidCredentials:
		return "wrong email or password"
	case services.FailureEmailNotVerified:
		return "verify your email address first"
	case services.FailureRateLimited:
		if res.RetryAfter > 0 {
			return fmt.Sprintf("too many attempts, try again in %s", res.RetryAfter.Round(time.Second))
		}
		return "too many attempts, try again later"
	}
	if res.Message != "" {
		return res.Message
	}
	return res.Failure
}

// Logout signs out and wipes the cached collections. Queued offline writes
// that never reached the remote are lost, so the user is told how many.
func (a *App) Logout(ctx context.Context) error {
	a.bridge.Stop()

	if lost := a.pendingTotal(ctx); lost > 0 {
		a.printf("Discarding %d change(s) that never reached the server.\n", lost)
	}

	a.session.Logout(ctx)

	err := a.clearCollections(ctx)
	a.println("Logged out")
	return err
}

// switchUser runs when someone other than the owner of the local cache
// signs in. Their predecessor's records and queued writes are wiped.
func (a *App) switchUser(ctx context.Context, previous, next string) error {
	if lost := a.pendingTotal(ctx); lost > 0 {
		a.printf("Discarding %d change(s) queued by the previous user.\n", lost)
	}
	a.log.Info(ctx, "local cache switches owner", "previous", previous, "user", next)
	return a.clearCollections(ctx)
}

func (a *App) pendingTotal(ctx context.Context) int {
	n := 0
	for _, c := range a.collections() {
		if p, err := c.pending(ctx); err == nil {
			n += p
		}
	}
	return n
}

func (a *App) clearCollections(ctx context.Context) error {
	var errs []error
	for _, c := range a.collections() {
		if err := c.clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) WhoAmI(context.Context) error {
	s := a.session.State()
	if s.User == nil {
		return errLoginRequired
	}
	a.printf("id:       %s\nemail:    %s\n", s.User.ID, s.User.Email)
	if s.User.Name != "" {
		a.printf("name:     %s\n", s.User.Name)
	}
	if !s.LastCheck.IsZero() {
		a.printf("verified: %s\n", s.LastCheck.Local().Format(time.DateTime))
	}
	return nil
}

// ResetPassword without arguments asks the service to email a reset
// token; "reset <token>" sets a new password with it.
func (a *App) ResetPassword(ctx context.Context, args []string) error {
	if len(args) == 0 {
		email, err := a.argOrAsk(nil, 0, "Email")
		if err != nil {
			return err
		}
		if err := a.session.RequestPasswordReset(ctx, email); err != nil {
			return err
		}
		a.println("If the address is registered, a reset token is on its way.")
		return nil
	}

	password, err := a.newPassword()
	if err != nil {
		return err
	}
	if err := a.session.ResetPassword(ctx, args[0], password); err != nil {
		return err
	}
	a.println("Password changed, you can log in now.")
	return nil
}
