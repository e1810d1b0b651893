package httpapi

import (
	"context"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/server/users"
)

type ctxKey string

const userKey ctxKey = "user"

func userFromContext(ctx context.Context) *users.User {
	u, _ := ctx.Value(userKey).(*users.User)
	return u
}

// statusRecorder remembers the status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the Flusher underneath.
func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// logRequests logs one line per request and recovers handler panics.
func logRequests(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			defer func() {
				if p := recover(); p != nil {
					log.Error(r.Context(), "panic recovered", "panic", p, "path", r.URL.Path,
						"stack", string(debug.Stack()))
					if rec.status == 0 {
						writeError(rec, http.StatusInternalServerError, CodeInternal, "Internal server error")
					}
				}

				args := []any{
					"method", r.Method,
					"path", r.URL.Path,
					"status", rec.status,
					"duration", time.Since(start),
					"request_id", reqID,
				}
				switch {
				case rec.status >= 500:
					log.Error(r.Context(), "http request", args...)
				case rec.status >= 400:
					log.Warn(r.Context(), "http request", args...)
				default:
					log.Debug(r.Context(), "http request", args...)
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// bearerToken takes the access token from the Authorization header, or
// from the session cookie when the header is absent.
func bearerToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

// authenticate rejects requests without a valid access token and stores
// the user in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r, s.cfg.CookieName)
		if token == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "No token provided")
			return
		}

		user, err := s.users.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

// rateLimiter keeps a token bucket per user.
type rateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRateLimiter(limit float64, burst int, now func() time.Time) *rateLimiter {
	return &rateLimiter{
		limit:    rate.Limit(limit),
		burst:    max(burst, 1),
		now:      now,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (rl *rateLimiter) get(userID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[userID] = l
	}
	return l
}

// middleware answers 429 with Retry-After once the user's bucket is empty.
// A zero limit disables it. It must run after authenticate.
func (rl *rateLimiter) middleware(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := userFromContext(r.Context())
			if u == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.get(u.ID).AllowN(rl.now(), 1) {
				retryAfter := max(int(math.Ceil(1/float64(rl.limit))), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests")
				log.Warn(r.Context(), "rate limit exceeded", "user_id", u.ID)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
