package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/studyctl/internal/cryptox"
	"github.com/dmitrijs2005/studyctl/internal/server/auth"
	"github.com/dmitrijs2005/studyctl/internal/server/config"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrUnauthorized     = errors.New("invalid credentials")
	ErrEmailNotVerified = errors.New("email not verified")
	ErrValidation       = errors.New("validation error")
	ErrInvalidToken     = errors.New("invalid or expired token")
)

const (
	resetTokenValidity  = 10 * time.Minute
	verifyTokenValidity = 24 * time.Hour
	passwordSpecials    = "@$!%*?&"
)

type Service struct {
	repo                         Repository
	tokens                       *tokenStore
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	requireVerification          bool
	now                          func() time.Time
}

func NewService(repo Repository, cfg *config.Config, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:                         repo,
		tokens:                       newTokenStore(),
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		requireVerification:          cfg.RequireEmailVerification,
		now:                          now,
	}
}

// Register creates an unverified account and returns it together with the
// email verification token. The server has no mailer; the caller decides
// what to do with the token.
func (s *Service) Register(ctx context.Context, email, name, password string) (*User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if err := validateEmail(email); err != nil {
		return nil, "", err
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > 50 {
		return nil, "", fmt.Errorf("%w: name must be between 2 and 50 characters", ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return nil, "", err
	}

	salt, err := cryptox.RandBytes(cryptox.SaltSize)
	if err != nil {
		return nil, "", fmt.Errorf("generate salt: %w", err)
	}

	user, err := s.repo.Create(ctx, &User{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Salt:      salt,
		Verifier:  cryptox.MakeVerifier([]byte(password), salt),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, "", fmt.Errorf("error creating user: %w", err)
	}

	token, err := s.tokens.issue(kindVerify, user.ID, s.now().Add(verifyTokenValidity))
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*User, *TokenPair, error) {
	user, err := s.repo.GetUserByLogin(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrUnauthorized
		}
		return nil, nil, err
	}

	if !cryptox.CheckPassword([]byte(password), user.Salt, user.Verifier) {
		return nil, nil, ErrUnauthorized
	}
	if s.requireVerification && !user.EmailVerified {
		return nil, nil, ErrEmailNotVerified
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh trades a refresh token for a new pair. The old token is spent.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*User, *TokenPair, error) {
	userID, err := s.tokens.consume(kindRefresh, refreshToken, s.now())
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Authenticate resolves an access token to its user.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	userID, err := auth.GetUserIDFromToken(accessToken, s.jwtSecret, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// Logout revokes every refresh token of the user.
func (s *Service) Logout(ctx context.Context, userID string) {
	s.tokens.revokeUser(kindRefresh, userID)
}

// RequestPasswordReset returns a reset token for email. Unknown addresses
// yield an empty token and no error so callers cannot tell which accounts exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if err := validateEmail(strings.TrimSpace(email)); err != nil {
		return "", err
	}
	user, err := s.repo.GetUserByLogin(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	s.tokens.revokeUser(kindReset, user.ID)
	return s.tokens.issue(kindReset, user.ID, s.now().Add(resetTokenValidity))
}

// ResetPassword sets a new password and signs the user out everywhere.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	userID, err := s.tokens.consume(kindReset, token, s.now())
	if err != nil {
		return err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrInvalidToken
	}

	salt, err := cryptox.RandBytes(cryptox.SaltSize)
	if err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	user.Salt = salt
	user.Verifier = cryptox.MakeVerifier([]byte(password), salt)
	if err := s.repo.Update(ctx, user); err != nil {
		return err
	}
	s.tokens.revokeUser(kindRefresh, user.ID)
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (*User, error) {
	userID, err := s.tokens.consume(kindVerify, token, s.now())
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user.EmailVerified = true
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

func (s *Service) issuePair(userID string) (*TokenPair, error) {
	accessToken, err := auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration, s.now())
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.issue(kindRefresh, userID, s.now().Add(s.refreshTokenValidityDuration))
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func validateEmail(email string) error {
	if a, err := mail.ParseAddress(email); err != nil || a.Address != email {
		return fmt.Errorf("%w: please provide a valid email address", ErrValidation)
	}
	return nil
}

// validatePassword wants 8 to 128 characters mixing lower and upper case
// letters, digits and one of @$!%*?&.
func validatePassword(p string) error {
	if n := utf8.RuneCountInString(p); n < 8 || n > 128 {
		return fmt.Errorf("%w: password must be between 8 and 128 characters long", ErrValidation)
	}
	var lower, upper, digit, special bool
	for _, r := range p {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	if !lower || !upper || !digit || !special {
		return fmt.Errorf("%w: password must contain a lowercase letter, an uppercase letter, a number and one of %s",
			ErrValidation, passwordSpecials)
	}
	return nil
}
