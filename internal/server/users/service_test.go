package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/studyctl/internal/server/config"
)

const goodPassword = "Secr3t!pass"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(t *testing.T, mutate func(*config.Config)) (*Service, *clock) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	if mutate != nil {
		mutate(cfg)
	}
	c := &clock{t: time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)}
	return NewService(NewMemoryRepository(), cfg, c.now), c
}

func newTestServiceWithRepo(t *testing.T, repo Repository) (*Service, *clock) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	c := &clock{t: time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)}
	return NewService(repo, cfg, c.now), c
}

func TestRegisterAndLogin(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	u, verify, err := s.Register(ctx, " Ada@Example.com ", "Ada Lovelace", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.False(t, u.EmailVerified)
	assert.Len(t, verify, 64)
	assert.NotEmpty(t, u.Verifier)

	_, _, err = s.Register(ctx, "ada@example.com", "Someone Else", goodPassword)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, pair, err := s.Login(ctx, "ADA@example.com", goodPassword)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	who, err := s.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, who.ID)

	_, _, err = s.Login(ctx, "ada@example.com", "Wr0ng!pass")
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = s.Login(ctx, "nobody@example.com", goodPassword)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegister_Validation(t *testing.T) {
	s, _ := newTestService(t, nil)

	tests := []struct {
		name, email, user, password string
	}{
		{"bad email", "not-an-email", "Ada", goodPassword},
		{"short name", "a@example.com", "A", goodPassword},
		{"short password", "a@example.com", "Ada", "S3!a"},
		{"no special", "a@example.com", "Ada", "Secr3tpass"},
		{"no upper", "a@example.com", "Ada", "secr3t!pass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Register(context.Background(), tt.email, tt.user, tt.password)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestLogin_RequiresVerification(t *testing.T) {
	s, _ := newTestService(t, func(c *config.Config) { c.RequireEmailVerification = true })
	ctx := context.Background()

	_, verify, err := s.Register(ctx, "bob@example.com", "Bob Smith", goodPassword)
	require.NoError(t, err)

	_, _, err = s.Login(ctx, "bob@example.com", goodPassword)
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	u, err := s.VerifyEmail(ctx, verify)
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)

	_, err = s.VerifyEmail(ctx, verify)
	assert.ErrorIs(t, err, ErrInvalidToken, "tokens are single use")

	_, _, err = s.Login(ctx, "bob@example.com", goodPassword)
	assert.NoError(t, err)
}

func TestAuthenticate_ExpiredToken(t *testing.T) {
	s, c := newTestService(t, nil)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "eve@example.com", "Eve Adams", goodPassword)
	require.NoError(t, err)
	_, pair, err := s.Login(ctx, "eve@example.com", goodPassword)
	require.NoError(t, err)

	c.t = c.t.Add(2 * time.Hour)
	_, err = s.Authenticate(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshAndLogout(t *testing.T) {
	s, _ := newTestService(t, nil)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "kim@example.com", "Kim Lee", goodPassword)
	require.NoError(t, err)
	u, pair, err := s.Login(ctx, "kim@example.com", goodPassword)
	require.NoError(t, err)

	_, next, err := s.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, _, err = s.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized, "refresh tokens are single use")

	s.Logout(ctx, u.ID)
	_, _, err = s.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPasswordReset(t *testing.T) {
	s, c := newTestService(t, nil)
	ctx := context.Background()

	_, _, err := s.Register(ctx, "max@example.com", "Max Power", goodPassword)
	require.NoError(t, err)

	none, err := s.RequestPasswordReset(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, none)

	first, err := s.RequestPasswordReset(ctx, "max@example.com")
	require.NoError(t, err)
	token, err := s.RequestPasswordReset(ctx, "max@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, s.ResetPassword(ctx, first, "N3w!passwd"), ErrInvalidToken, "a newer request revokes older tokens")
	assert.ErrorIs(t, s.ResetPassword(ctx, token, "weak"), ErrValidation)
	require.NoError(t, s.ResetPassword(ctx, token, "N3w!passwd"))

	_, _, err = s.Login(ctx, "max@example.com", goodPassword)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = s.Login(ctx, "max@example.com", "N3w!passwd")
	assert.NoError(t, err)

	late, err := s.RequestPasswordReset(ctx, "max@example.com")
	require.NoError(t, err)
	c.t = c.t.Add(11 * time.Minute)
	assert.ErrorIs(t, s.ResetPassword(ctx, late, goodPassword), ErrInvalidToken)
}
