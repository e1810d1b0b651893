package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/studyctl/internal/client/client"
	"github.com/dmitrijs2005/studyctl/internal/client/config"
	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/client/push"
	"github.com/dmitrijs2005/studyctl/internal/client/repositories/cache"
	"github.com/dmitrijs2005/studyctl/internal/client/services"
	"github.com/dmitrijs2005/studyctl/internal/client/state"
	"github.com/dmitrijs2005/studyctl/internal/client/store"
	"github.com/dmitrijs2005/studyctl/internal/filex"
	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/obs"
)

// App owns every client component for one CLI run.
type App struct {
	config *config.Config
	log    logging.Logger
	now    func() time.Time

	repo    *cache.SQLiteRepository
	api     *client.HTTPClient
	tracker *state.Tracker
	session *services.SessionManager
	notes   *services.NotesService
	tasks   *services.TasksService
	diary   *services.DiaryService
	focus   *services.FocusService
	bridge  *push.Bridge

	metricsSrv *http.Server

	reader *bufio.Reader
	outMu  sync.Mutex
	out    io.Writer
}

// Deps overrides the pieces NewApp would otherwise build. Zero fields get
// the defaults.
type Deps struct {
	In        io.Reader
	Out       io.Writer
	Logger    logging.Logger
	Transport http.RoundTripper
	Now       func() time.Time
}

// NewApp builds the client from c. The cache database is opened (and
// migrated) here; Close releases it.
func NewApp(ctx context.Context, c *config.Config, d Deps) (*App, error) {
	log := d.Logger
	if log == nil {
		log = logging.Discard()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	if err := filex.EnsureParentDir(c.CachePath); err != nil {
		return nil, err
	}
	repo, err := cache.Open(ctx, c.CachePath)
	if err != nil {
		return nil, err
	}

	a := &App{
		config:  c,
		log:     log,
		now:     now,
		repo:    repo,
		tracker: state.NewTracker(now),
		reader:  bufio.NewReader(d.In),
		out:     d.Out,
	}

	var metrics obs.Recorder = obs.Nop{}
	if c.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics = obs.NewCollector(reg)
		a.metricsSrv = &http.Server{
			Addr:              c.MetricsAddr,
			Handler:           obs.Handler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	a.api, err = client.New(c.ServerURL, client.Options{
		Timeout:   c.RequestTimeout,
		RateLimit: rate.Limit(c.RateLimit),
		RateBurst: c.RateBurst,
		Logger:    log,
		Metrics:   metrics,
		Transport: d.Transport,
	})
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	a.session = services.NewSessionManager(a.api, repo, services.SessionConfig{
		StaleAfter:        c.StaleAfter,
		MonitorInterval:   c.MonitorInterval,
		LoginAttempts:     c.LoginAttempts,
		LoginRetryDelay:   c.LoginRetryDelay,
		SessionAttempts:   c.SessionAttempts,
		SessionRetryDelay: c.SessionRetryDelay,
	}, log, now)
	a.session.OnExpired(a.sessionExpired)
	a.session.OnUserChange(a.switchUser)

	opts := store.Options{Tracker: a.tracker, Metrics: metrics, Logger: log, Now: now}
	a.notes = services.NewNotesService(a.api, repo, opts)
	a.tasks = services.NewTasksService(a.api, repo, opts)
	a.diary = services.NewDiaryService(a.api, repo, opts)
	a.focus = services.NewFocusService(a.api, repo, opts)

	pc := push.DefaultConfig()
	pc.Path = c.PushPath
	pc.BaseDelay = c.PushBaseDelay
	pc.MaxReconnects = c.PushMaxAttempts
	a.bridge = push.New(a.api, pc, log, metrics)
	a.bridge.Subscribe(push.CacheSync[models.Note](a.notes, log))
	a.bridge.Subscribe(a.printEvent)
	a.bridge.OnConnected(func(ctx context.Context) { a.flushAll(ctx) })

	return a, nil
}

// Run resolves any cached session, then serves the REPL until the user
// exits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if err := a.serveMetrics(); err != nil {
		return err
	}

	a.println("Welcome to studyctl (type 'help' for commands)")

	s := a.session.Initialize(ctx)
	if s.IsAuthenticated {
		a.printf("Signed in as %s\n", userLabel(s.User))
		a.bridge.Start(ctx)
	} else if s.Error != "" {
		a.println(s.Error)
	}

	runREPL(ctx, a, bufio.NewScanner(a.reader), a.writer())
	return nil
}

func (a *App) serveMetrics() error {
	if a.metricsSrv == nil {
		return nil
	}
	ln, err := net.Listen("tcp", a.metricsSrv.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error(context.Background(), "metrics server stopped", "err", err)
		}
	}()
	return nil
}

// Close stops background work and releases the cache.
func (a *App) Close() {
	a.bridge.Stop()
	a.session.StopMonitoring()
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if err := a.repo.Close(); err != nil {
		a.log.Warn(context.Background(), "closing cache", "err", err)
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.State().IsAuthenticated
}

// prompt renders "studyctl (user) [offline]> ".
func (a *App) prompt() string {
	var b strings.Builder
	b.WriteString("studyctl")
	if s := a.session.State(); s.IsAuthenticated {
		b.WriteString(" (" + userLabel(s.User) + ")")
	}
	if a.tracker.Snapshot().Visible() {
		b.WriteString(" [offline]")
	}
	b.WriteString("> ")
	return b.String()
}

// sessionExpired runs on the session monitor when revalidation fails.
func (a *App) sessionExpired(s models.Session) {
	a.bridge.Stop()
	msg := "your session has ended, please log in again"
	if s.Error != "" {
		msg += " (" + s.Error + ")"
	}
	a.println("\n" + msg)
}

func (a *App) printEvent(_ context.Context, ev push.Event) {
	label := ev.EntityID
	if ev.HasEntity() {
		var n models.Note
		if err := json.Unmarshal(ev.Entity, &n); err == nil && n.Title != "" {
			label = fmt.Sprintf("%q (%s)", n.Title, n.ID)
		}
	}
	a.printf("\n[push] note %s: %s\n", ev.Action(), label)
}

// flushAll replays every collection's outbox. Failures stay queued.
func (a *App) flushAll(ctx context.Context) map[string]store.FlushResult {
	type flusher struct {
		name  string
		flush func(context.Context) (store.FlushResult, error)
	}
	all := []flusher{
		{a.notes.Name(), a.notes.Flush},
		{a.tasks.Name(), a.tasks.Flush},
		{a.diary.Name(), a.diary.Flush},
		{a.focus.Name(), a.focus.Flush},
	}

	out := make(map[string]store.FlushResult, len(all))
	for _, f := range all {
		res, err := f.flush(ctx)
		if err != nil {
			a.log.Warn(ctx, "outbox flush stopped", "collection", f.name, "err", err)
		}
		out[f.name] = res
	}
	return out
}

func (a *App) writer() io.Writer { return lockedWriter{a} }

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// lockedWriter serializes REPL output with push notifications.
type lockedWriter struct{ a *App }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.a.outMu.Lock()
	defer w.a.outMu.Unlock()
	return w.a.out.Write(p)
}

func userLabel(u *models.User) string {
	if u == nil {
		return "?"
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
