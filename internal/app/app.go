// Package app wires the addressbook service: configuration, logging, the
// database queue, schema migrations, the HTTP API and periodic maintenance.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"serialdb"
	"serialdb/internal/config"
	"serialdb/internal/logger"
)

// App wires application components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	closeLog func() error
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, closeLog := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "addressbook",
	})
	return &App{cfg: cfg, log: log, closeLog: closeLog}, nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	defer func() { _ = a.closeLog() }()
	a.log.Info("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := serialdb.DefaultOptions()
	opts.Logger = a.log
	q, err := serialdb.Open(ctx, a.cfg.DB.Path, opts)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	if err := Migrations().Migrate(ctx, q); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc(a.cfg.DB.CheckpointSpec, func() { a.checkpoint(context.Background(), q) }); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	if a.cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	a.routes(r, q)

	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server", slog.Any("err", err))
		}
	}()
	a.log.Info("listening", slog.String("addr", a.cfg.HTTP.Addr))

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// checkpoint compacts the WAL and lets the engine apply gathered statistics.
func (a *App) checkpoint(ctx context.Context, q *serialdb.Queue) {
	err := q.InDatabase(ctx, func(ctx context.Context, db *serialdb.DB) error {
		if _, err := db.Execute(ctx, "PRAGMA wal_checkpoint(TRUNCATE)", serialdb.Bindings{}); err != nil {
			return err
		}
		_, err := db.Execute(ctx, "PRAGMA optimize", serialdb.Bindings{})
		return err
	})
	if err != nil {
		a.log.Warn("maintenance checkpoint failed", slog.Any("err", err))
		return
	}
	a.log.Debug("maintenance checkpoint completed")
}
