// Package httpapi serves the studyctl REST API and the notes event stream
// over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/server/config"
	"github.com/dmitrijs2005/studyctl/internal/server/records"
	"github.com/dmitrijs2005/studyctl/internal/server/stream"
	"github.com/dmitrijs2005/studyctl/internal/server/users"
)

type Server struct {
	cfg     *config.Config
	log     logging.Logger
	users   *users.Service
	store   *records.Store
	stream  *stream.Stream
	limiter *rateLimiter
	metrics http.Handler
	now     func() time.Time
}

func NewServer(cfg *config.Config, l logging.Logger, us *users.Service, store *records.Store, st *stream.Stream, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	return &Server{
		cfg:     cfg,
		log:     l.With("module", "http_server"),
		users:   us,
		store:   store,
		stream:  st,
		limiter: newRateLimiter(cfg.RateLimit, cfg.RateBurst, now),
		now:     now,
	}
}

// WithMetrics serves h at /metrics, outside cfg.BasePath.
func (s *Server) WithMetrics(h http.Handler) *Server {
	s.metrics = h
	return s
}

// Handler builds the router. Every API route lives under cfg.BasePath.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(logRequests(s.log))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	if s.cfg.BasePath == "" || s.cfg.BasePath == "/" {
		s.routes(r)
	} else {
		r.Route(s.cfg.BasePath, s.routes)
	}
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Get("/health", s.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/login", s.login)
		r.Post("/refresh-token", s.refreshToken)
		r.Post("/forgot-password", s.forgotPassword)
		r.Post("/reset-password", s.resetPassword)
		r.Post("/verify-email", s.verifyEmail)
		r.Post("/create-session", s.createSession)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/logout", s.logout)
			r.Get("/me", s.me)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate, s.limiter.middleware(s.log))

		notes := newResource(s, s.store.Notes, "notes", "note")
		notes.publish = s.publishNote
		r.Route("/notes", func(r chi.Router) {
			r.Get("/ws", s.notesStream)
			notes.mount(r)
			r.Patch("/{id}/archive", archiveNote(notes))
			r.Post("/{id}/duplicate", duplicateNote(notes))
		})

		tasks := newResource(s, s.store.Tasks, "tasks", "task")
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/overdue", tasks.overdue)
			tasks.mount(r)
			r.Patch("/{id}/toggle", toggleTask(tasks))
		})

		diary := newResource(s, s.store.Diary, "entries", "entry")
		r.Route("/diary", diary.mount)

		sessions := newResource(s, s.store.Focus, "sessions", "session")
		r.Route("/focus", func(r chi.Router) {
			r.Get("/settings", s.getSettings)
			r.Put("/settings", s.updateSettings)
			r.Route("/sessions", func(r chi.Router) {
				sessions.mount(r)
				r.Patch("/{id}/complete", completeSession(sessions))
			})
		})
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": s.now().UTC()}, "")
}

// Run listens on cfg.Addr until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then shuts down
// gracefully. Open event streams end with ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.log.Info(ctx, "Starting HTTP server", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
