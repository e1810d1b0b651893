// Package server wires the development API server: the account store,
// in-memory records, the notes event stream, and the HTTP API in front
// of them.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/studyctl/internal/filex"
	"github.com/dmitrijs2005/studyctl/internal/logging"
	"github.com/dmitrijs2005/studyctl/internal/obs"
	"github.com/dmitrijs2005/studyctl/internal/server/config"
	"github.com/dmitrijs2005/studyctl/internal/server/httpapi"
	"github.com/dmitrijs2005/studyctl/internal/server/records"
	"github.com/dmitrijs2005/studyctl/internal/server/stream"
	"github.com/dmitrijs2005/studyctl/internal/server/users"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

// NewApp builds the server. Accounts live in SQLite when cfg.DatabaseDSN
// is set and in memory otherwise; records are always in memory.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	now := time.Now
	app := &App{config: c, logger: logger}

	var repo users.Repository = users.NewMemoryRepository()
	if c.DatabaseDSN != "" {
		if err := filex.EnsureParentDir(c.DatabaseDSN); err != nil {
			return nil, err
		}
		db, err := users.OpenDB(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		repo = users.NewSQLiteRepository(db)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	us := users.NewService(repo, c, now)
	app.server = httpapi.NewServer(c, logger, us, records.NewStore(now, nil), stream.New(), now).
		WithMetrics(obs.Handler(reg))

	return app, nil
}

// Run serves until ctx is cancelled.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...", "address", app.config.Addr, "base_path", app.config.BasePath)

	if app.db != nil {
		defer app.db.Close()
	}

	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, "server stopped", "err", err)
		return err
	}

	app.logger.Info(ctx, "App stopped")
	return nil
}
