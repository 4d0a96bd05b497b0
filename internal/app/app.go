package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gmsas95/dosewise/internal/api"
	"github.com/gmsas95/dosewise/internal/config"
	"github.com/gmsas95/dosewise/internal/health"
	"github.com/gmsas95/dosewise/internal/logger"
	"github.com/gmsas95/dosewise/internal/metrics"
	"github.com/gmsas95/dosewise/internal/prefs"
	"github.com/gmsas95/dosewise/internal/reminder"
	"github.com/gmsas95/dosewise/internal/store"
	"github.com/gmsas95/dosewise/internal/tracker"
)

type App struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Health  *health.Store
	KV      *store.Store
	Prefs   *prefs.Store
	Tracker *tracker.Tracker
	Runner  *reminder.Runner
	Version string
}

func New(cfg *config.Config, log *logger.Logger, version string) *App {
	if log == nil {
		log = logger.Nop()
	}
	return &App{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.Default(),
		Version: version,
	}
}

// Open connects the stores and builds the tracker. Call Close when done.
func (app *App) Open() error {
	loc, err := app.Config.Location()
	if err != nil {
		return err
	}

	db, err := health.OpenSQLite(app.Config.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	hs, err := health.NewStore(db)
	if err != nil {
		return fmt.Errorf("failed to initialize health store: %w", err)
	}
	app.Health = hs

	kv, err := store.Open(app.Config.Storage.BadgerPath)
	if err != nil {
		hs.Close()
		return fmt.Errorf("failed to open key-value store: %w", err)
	}
	app.KV = kv
	app.Prefs = prefs.NewStore(kv)

	app.Tracker = tracker.New(hs,
		tracker.WithLocation(loc),
		tracker.WithLogger(app.Logger.Named("tracker")),
		tracker.WithMetrics(app.Metrics),
		tracker.WithStreakLookback(app.Config.Engine.StreakLookbackDays),
	)

	app.Logger.Debug("Stores opened",
		zap.String("sqlite", app.Config.Storage.SQLitePath),
		zap.String("badger", app.Config.Storage.BadgerPath),
		zap.String("timezone", loc.String()),
	)
	return nil
}

func (app *App) Close() error {
	var firstErr error
	if app.KV != nil {
		if err := app.KV.Close(); err != nil {
			firstErr = err
		}
	}
	if app.Health != nil {
		if err := app.Health.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RunServer serves the API and runs the reminder sweep until SIGINT or SIGTERM.
func (app *App) RunServer() error {
	if app.Tracker == nil {
		if err := app.Open(); err != nil {
			return err
		}
	}
	defer app.Close()

	if app.Config.Reminders.Enabled {
		runner, err := app.buildRunner()
		if err != nil {
			return err
		}
		if err := runner.Start(); err != nil {
			return fmt.Errorf("failed to start reminders: %w", err)
		}
		app.Runner = runner
		app.Logger.Info("Reminder sweep started", zap.String("spec", app.Config.Reminders.Spec))
	}

	if app.Config.File != "" {
		watcher, err := config.NewWatcher(app.Config, app.Logger.Named("config"))
		if err != nil {
			app.Logger.Warn("Config hot reload disabled", zap.Error(err))
		} else {
			watcher.OnChange(app.applyConfig)
			defer watcher.Close()
		}
	}

	server := api.New(api.Deps{
		Config:  app.Config,
		Store:   app.Health,
		Tracker: app.Tracker,
		Prefs:   app.Prefs,
		Metrics: app.Metrics,
		Logger:  app.Logger.Named("api"),
		Version: app.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("version", app.Version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		app.Logger.Error("Server error", zap.Error(serveErr))
	}

	app.Logger.Info("Shutting down...")

	if app.Runner != nil {
		app.Runner.Stop()
	}
	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}
	return serveErr
}

// applyConfig takes the parts of a reloaded config that are safe to change
// while running. Everything else needs a restart.
func (app *App) applyConfig(next *config.Config) {
	if err := app.Logger.SetLevel(next.Log.Level); err != nil {
		app.Logger.Warn("Ignoring invalid log level", zap.String("level", next.Log.Level), zap.Error(err))
	} else {
		app.Config.Log.Level = next.Log.Level
	}

	if next.Reminders.Spec != app.Config.Reminders.Spec ||
		next.Server.Port != app.Config.Server.Port ||
		next.Storage != app.Config.Storage {
		app.Logger.Warn("Some configuration changes take effect after restart")
	}
}
