package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/repositories/cache"
	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/retry"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Cache namespaces and keys owned by the session manager. OwnerNamespace
// survives logout and expiry: it names the user whose records the
// collection caches hold.
const (
	SessionNamespace = "session"
	OwnerNamespace   = "owner"

	keyToken     = "auth-token"
	keyUser      = "auth-user"
	keyTimestamp = "auth-timestamp"
	keyOwner     = "user-id"
)

// Login failure classes.
const (
	FailureInvalidCredentials    = "invalid_credentials"
	FailureEmailNotVerified      = "email_not_verified"
	FailureRateLimited           = "rate_limited"
	FailureUnavailable           = "unavailable"
	FailureSessionNotEstablished = "session_not_established"
	FailureUnknown               = "unknown"
)

// AuthClient is the part of the transport client the session manager uses.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*models.AuthPayload, error)
	Register(ctx context.Context, creds models.Credentials) (*models.AuthPayload, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*models.User, error)
	CreateSession(ctx context.Context) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	SetToken(token string)
}

// LoginResult is the outcome of a login attempt. Expected rejections are
// reported through Failure, not as errors.
type LoginResult struct {
	User       *models.User
	Failure    string
	Message    string
	RetryAfter time.Duration
}

func (r LoginResult) OK() bool { return r.Failure == "" && r.User != nil }

// SessionConfig tunes the session manager.
type SessionConfig struct {
	// StaleAfter is how long a cached credential may stand in for the
	// remote when verification cannot reach it.
	StaleAfter      time.Duration
	MonitorInterval time.Duration
	// InitTimeout bounds Initialize.
	InitTimeout time.Duration
	// CheckTimeout bounds one verification round trip.
	CheckTimeout time.Duration

	LoginAttempts     int
	LoginRetryDelay   time.Duration
	SessionAttempts   int
	SessionRetryDelay time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		StaleAfter:        10 * time.Minute,
		MonitorInterval:   5 * time.Minute,
		InitTimeout:       15 * time.Second,
		CheckTimeout:      15 * time.Second,
		LoginAttempts:     3,
		LoginRetryDelay:   time.Second,
		SessionAttempts:   3,
		SessionRetryDelay: 500 * time.Millisecond,
	}
}

// SessionManager owns the signed-in state: login, verification against the
// remote with a staleness-windowed cache fallback, logout and periodic
// revalidation. Construct it with NewSessionManager; monitoring runs only
// between StartMonitoring and StopMonitoring (or Logout).
type SessionManager struct {
	auth   AuthClient
	bucket *cache.Bucket
	owner  *cache.Bucket
	cfg    SessionConfig
	log    logging.Logger
	now    func() time.Time

	checks singleflight.Group

	mu      sync.RWMutex
	session models.Session
	// gen changes on every login and reset; a verification started under
	// an older generation must not overwrite the newer state.
	gen          uint64
	onExpired    func(models.Session)
	onUserChange func(ctx context.Context, previous, next string) error

	monMu     sync.Mutex
	monCancel context.CancelFunc
	monDone   chan struct{}
}

func NewSessionManager(auth AuthClient, repo cache.Repository, cfg SessionConfig, log logging.Logger, now func() time.Time) *SessionManager {
	if log == nil {
		log = logging.Discard()
	}
	if now == nil {
		now = time.Now
	}
	def := DefaultSessionConfig()
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = def.InitTimeout
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = def.CheckTimeout
	}
	return &SessionManager{
		auth:   auth,
		bucket: cache.NewBucket(repo, SessionNamespace),
		owner:  cache.NewBucket(repo, OwnerNamespace),
		cfg:    cfg,
		log:    log.With("component", "session"),
		now:    now,
	}
}

// OnExpired registers fn to be called when monitoring finds the session
// gone. fn runs on the monitor goroutine.
func (m *SessionManager) OnExpired(fn func(models.Session)) {
	m.mu.Lock()
	m.onExpired = fn
	m.mu.Unlock()
}

// OnUserChange registers fn to be called during Login when the user
// signing in is not the one the local caches belong to. previous is empty
// when the owner is unknown. fn must drop everything cached for previous;
// if it fails, the login fails.
func (m *SessionManager) OnUserChange(fn func(ctx context.Context, previous, next string) error) {
	m.mu.Lock()
	m.onUserChange = fn
	m.mu.Unlock()
}

// Owner returns the user the local caches belong to, or "".
func (m *SessionManager) Owner(ctx context.Context) string {
	var id string
	if _, err := m.owner.Load(ctx, keyOwner, &id); err != nil {
		m.log.Warn(ctx, "reading cache owner failed", "err", err)
	}
	return id
}

// State returns a copy of the current session.
func (m *SessionManager) State() models.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.session
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Initialize resolves the startup state. It always returns within
// InitTimeout, anonymous if verification did not finish in time.
func (m *SessionManager) Initialize(ctx context.Context) models.Session {
	m.mu.Lock()
	m.session.IsInitializing = true
	m.mu.Unlock()

	ictx, cancel := context.WithTimeout(ctx, m.cfg.InitTimeout)
	defer cancel()

	s := m.CheckAuthentication(ictx)

	m.mu.Lock()
	m.session.IsInitializing = false
	m.mu.Unlock()
	s.IsInitializing = false

	if s.IsAuthenticated {
		m.StartMonitoring()
	}
	return s
}

// Login authenticates, establishes the server-side session and caches the
// credential. Transport failures are retried; rejections are not. If the
// session cannot be established the login fails as a whole and nothing is
// kept. The returned error is reserved for cancellation and cache failures.
func (m *SessionManager) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var payload *models.AuthPayload
	err := retry.Do(ctx, m.loginPolicy(), func(ctx context.Context) error {
		p, err := m.auth.Login(ctx, email, password)
		payload = p
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return LoginResult{}, ctx.Err()
		}
		res := classifyLogin(err)
		m.log.Info(ctx, "login rejected", "failure", res.Failure, "err", err)
		m.mu.Lock()
		m.session.Error = res.Message
		m.mu.Unlock()
		return res, nil
	}

	token := payload.Bearer()
	m.auth.SetToken(token)

	if err := retry.Do(ctx, m.sessionPolicy(), m.auth.CreateSession); err != nil {
		m.log.Warn(ctx, "session creation failed, abandoning login", "err", err)
		m.reset(ctx, "session could not be established")
		if ctx.Err() != nil {
			return LoginResult{}, ctx.Err()
		}
		return LoginResult{
			Failure: FailureSessionNotEstablished,
			Message: "signed in, but the server session could not be established; try again",
		}, nil
	}

	user := payload.User
	if err := m.claimCaches(ctx, user.ID); err != nil {
		m.reset(ctx, "")
		return LoginResult{}, err
	}

	m.mu.Lock()
	m.gen++
	err = m.persist(ctx, token, user)
	if err == nil {
		m.session = models.Session{User: &user, IsAuthenticated: true, LastCheck: m.now()}
	}
	m.mu.Unlock()
	if err != nil {
		m.reset(ctx, "")
		return LoginResult{}, err
	}
	m.StartMonitoring()

	m.log.Info(ctx, "logged in", "user", user.ID)
	return LoginResult{User: &user}, nil
}

// claimCaches hands the local caches to userID, wiping another user's
// records and queued writes first.
func (m *SessionManager) claimCaches(ctx context.Context, userID string) error {
	prev := m.Owner(ctx)
	if prev == userID {
		return nil
	}

	m.mu.RLock()
	fn := m.onUserChange
	m.mu.RUnlock()
	if fn != nil {
		if err := fn(ctx, prev, userID); err != nil {
			return fmt.Errorf("drop cached data of previous user: %w", err)
		}
	}
	m.log.Info(ctx, "local cache claimed", "previous", prev, "user", userID)

	if err := m.owner.Store(ctx, keyOwner, userID); err != nil {
		return fmt.Errorf("cache owner: %w", err)
	}
	return nil
}

func (m *SessionManager) loginPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: m.cfg.LoginAttempts,
		Delay:       retry.Linear(m.cfg.LoginRetryDelay),
		Retryable:   func(err error) bool { return errors.Is(err, client.ErrTransport) },
		OnRetry: func(n int, d time.Duration, err error) {
			m.log.Debug(context.Background(), "retrying login", "retry", n, "delay", d, "err", err)
		},
	}
}

func (m *SessionManager) sessionPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: m.cfg.SessionAttempts,
		Delay:       retry.Linear(m.cfg.SessionRetryDelay),
		Retryable:   client.Fallback,
		OnRetry: func(n int, d time.Duration, err error) {
			m.log.Debug(context.Background(), "retrying session creation", "retry", n, "delay", d, "err", err)
		},
	}
}

func classifyLogin(err error) LoginResult {
	msg := err.Error()
	var ae *client.APIError
	if errors.As(err, &ae) && ae.Message != "" {
		msg = ae.Message
	}

	switch {
	case ae != nil && (ae.Code == "EMAIL_NOT_VERIFIED" || strings.Contains(strings.ToLower(ae.Message), "verify")):
		return LoginResult{Failure: FailureEmailNotVerified, Message: msg}
	case errors.Is(err, client.ErrUnauthorized), errors.Is(err, client.ErrValidation):
		return LoginResult{Failure: FailureInvalidCredentials, Message: msg}
	case errors.Is(err, client.ErrRateLimited):
		return LoginResult{Failure: FailureRateLimited, Message: msg, RetryAfter: client.RetryAfter(err)}
	case client.Fallback(err):
		return LoginResult{Failure: FailureUnavailable, Message: "service unavailable, try again later"}
	}
	return LoginResult{Failure: FailureUnknown, Message: msg}
}

// Register creates an account. The service expects the address to be
// verified before the first login, so no session is started.
func (m *SessionManager) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	p, err := m.auth.Register(ctx, models.Credentials{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &p.User, nil
}

func (m *SessionManager) RequestPasswordReset(ctx context.Context, email string) error {
	return m.auth.ForgotPassword(ctx, email)
}

func (m *SessionManager) ResetPassword(ctx context.Context, token, password string) error {
	return m.auth.ResetPassword(ctx, token, password)
}

// CheckAuthentication verifies the cached credential with the remote.
// Concurrent callers share one in-flight verification and observe the same
// result. A caller whose ctx ends first gets the state as it stands.
func (m *SessionManager) CheckAuthentication(ctx context.Context) models.Session {
	ch := m.checks.DoChan("check", func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CheckTimeout)
		defer cancel()
		return m.check(cctx), nil
	})

	select {
	case r := <-ch:
		return r.Val.(models.Session)
	case <-ctx.Done():
		return m.State()
	}
}

func (m *SessionManager) check(ctx context.Context) models.Session {
	now := m.now()

	m.mu.RLock()
	gen := m.gen
	m.mu.RUnlock()

	token, user, at, ok := m.cached(ctx)
	if !ok {
		return m.apply(ctx, gen, models.Session{LastCheck: now}, nil)
	}
	if tokenExpired(token, now) {
		return m.resetAt(ctx, gen, "session expired")
	}

	m.auth.SetToken(token)
	u, err := m.auth.Me(ctx)
	switch {
	case err == nil:
		if cerr := m.claimCaches(ctx, u.ID); cerr != nil {
			m.log.Warn(ctx, "claiming local cache failed", "err", cerr)
			return m.resetAt(ctx, gen, "local cache unavailable, please log in again")
		}
		return m.apply(ctx, gen, models.Session{User: u, IsAuthenticated: true, LastCheck: now}, func() error {
			return m.persist(ctx, token, *u)
		})

	case errors.Is(err, client.ErrUnauthorized):
		m.log.Info(ctx, "credential rejected", "err", err)
		return m.resetAt(ctx, gen, "session expired, please log in again")

	case user != nil && now.Sub(at) < m.cfg.StaleAfter && m.Owner(ctx) == user.ID:
		m.log.Warn(ctx, "verification unavailable, using cached session", "age", now.Sub(at), "err", err)
		return m.apply(ctx, gen, models.Session{User: user, IsAuthenticated: true, LastCheck: now, Error: err.Error()}, nil)
	}

	m.log.Warn(ctx, "verification unavailable and cached session too old", "err", err)
	return m.resetAt(ctx, gen, err.Error())
}

// apply installs s unless a login or reset happened since gen. persist,
// when set, runs under the same lock.
func (m *SessionManager) apply(ctx context.Context, gen uint64, s models.Session, persist func() error) models.Session {
	m.mu.Lock()
	if m.gen == gen {
		if persist != nil {
			if err := persist(); err != nil {
				m.log.Warn(ctx, "caching verified session failed", "err", err)
			}
		}
		m.session = s
	}
	m.mu.Unlock()
	return m.State()
}

// tokenExpired reads the exp claim without verifying the signature; the
// remote does the verifying. Tokens that are not JWTs never expire here.
func tokenExpired(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time)
}

// Logout stops monitoring, tells the remote (best effort) and clears the
// cached credential whatever the remote said.
func (m *SessionManager) Logout(ctx context.Context) {
	m.StopMonitoring()
	if err := m.auth.Logout(ctx); err != nil {
		m.log.Warn(ctx, "remote logout failed", "err", err)
	}
	m.reset(ctx, "")
}

// StartMonitoring revalidates the session every MonitorInterval. Calling it
// while monitoring is running does nothing.
func (m *SessionManager) StartMonitoring() {
	m.monMu.Lock()
	defer m.monMu.Unlock()
	if m.monCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.monCancel, m.monDone = cancel, done
	go m.monitor(ctx, done)
}

// StopMonitoring cancels the monitor and waits for it to exit.
func (m *SessionManager) StopMonitoring() {
	m.monMu.Lock()
	cancel, done := m.monCancel, m.monDone
	m.monCancel, m.monDone = nil, nil
	m.monMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Monitoring reports whether the monitor is running.
func (m *SessionManager) Monitoring() bool {
	m.monMu.Lock()
	defer m.monMu.Unlock()
	return m.monCancel != nil
}

func (m *SessionManager) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(m.cfg.MonitorInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		s := m.CheckAuthentication(ctx)
		if ctx.Err() != nil {
			return
		}
		if s.IsAuthenticated {
			continue
		}

		m.monMu.Lock()
		if m.monDone == done {
			m.monCancel()
			m.monCancel, m.monDone = nil, nil
		}
		m.monMu.Unlock()

		m.log.Info(ctx, "session ended by revalidation", "reason", s.Error)
		m.mu.RLock()
		fn := m.onExpired
		m.mu.RUnlock()
		if fn != nil {
			fn(s)
		}
		return
	}
}

// reset drops the credential everywhere and goes anonymous.
func (m *SessionManager) reset(ctx context.Context, reason string) models.Session {
	m.mu.Lock()
	m.clearLocked(ctx, reason)
	m.mu.Unlock()
	return m.State()
}

// resetAt is reset for a verification started under gen.
func (m *SessionManager) resetAt(ctx context.Context, gen uint64, reason string) models.Session {
	m.mu.Lock()
	if m.gen == gen {
		m.clearLocked(ctx, reason)
	}
	m.mu.Unlock()
	return m.State()
}

func (m *SessionManager) clearLocked(ctx context.Context, reason string) {
	m.gen++
	m.auth.SetToken("")
	if err := m.bucket.Clear(ctx); err != nil {
		m.log.Warn(ctx, "clearing cached session failed", "err", err)
	}
	m.session = models.Session{LastCheck: m.now(), Error: reason}
}

func (m *SessionManager) persist(ctx context.Context, token string, user models.User) error {
	err := m.bucket.StoreMany(ctx, map[string]any{
		keyToken:     token,
		keyUser:      user,
		keyTimestamp: m.now(),
	})
	if err != nil {
		return fmt.Errorf("cache session: %w", err)
	}
	return nil
}

// cached loads the stored credential. ok is false when there is no token.
func (m *SessionManager) cached(ctx context.Context) (token string, user *models.User, at time.Time, ok bool) {
	found, err := m.bucket.Load(ctx, keyToken, &token)
	if err != nil {
		m.log.Warn(ctx, "reading cached session failed", "err", err)
		return "", nil, time.Time{}, false
	}
	if !found || token == "" {
		return "", nil, time.Time{}, false
	}

	var u models.User
	if found, _ := m.bucket.Load(ctx, keyUser, &u); found && u.ID != "" {
		user = &u
	}
	_, _ = m.bucket.Load(ctx, keyTimestamp, &at)
	return token, user, at, true
}
