package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/qcsys/recordq/internal/config"
	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/memory"
	"github.com/qcsys/recordq/internal/platform/pebblestore"
	"github.com/qcsys/recordq/internal/platform/postgres"
	"github.com/qcsys/recordq/internal/service/auth"
	"github.com/qcsys/recordq/internal/service/lease"
	"github.com/qcsys/recordq/internal/service/queue"
	"github.com/qcsys/recordq/internal/store"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Exactly one backend handle is set, matching config.Store.Driver.
	db     *sql.DB
	pebble *pebblestore.DB

	pool    store.TaskPool
	archive store.ArchiveStore
	users   store.UserStore

	jwtService   auth.JWTService
	loginService auth.LoginService
	leases       lease.LeaseManager
	queue        queue.QueueMutator
}

// newApplication opens the configured backend and builds the services on it.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	if err := app.openStores(ctx); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Queue.RecordTimezone)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("invalid queue.record_timezone: %w", err)
	}

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		slog.Int("token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes))

	app.loginService = auth.NewLoginService(app.users, app.jwtService, auth.NewBcryptVerifier(), 0, logger)
	app.leases = lease.NewLeaseManager(app.pool, cfg.Queue.LeaseTTL(), logger)
	app.queue = queue.NewQueueMutator(app.pool, app.archive, cfg.Queue.LeaseTTL(), logger,
		queue.WithLocation(loc))

	logger.Info("Application initialized successfully",
		slog.String("driver", cfg.Store.Driver),
		slog.Duration("lease_ttl", cfg.Queue.LeaseTTL()))
	return app, nil
}

func (app *application) openStores(ctx context.Context) error {
	switch app.config.Store.Driver {
	case config.DriverPostgres:
		db, err := setupAppDatabase(ctx, app.config, app.logger)
		if err != nil {
			return err
		}
		app.db = db
		app.pool = postgres.NewPostgresTaskPool(db, app.logger)
		app.archive = postgres.NewPostgresArchiveStore(db, app.logger)
		app.users = postgres.NewPostgresUserStore(db, app.logger)

	case config.DriverPebble:
		pdb, err := pebblestore.Open(pebblestore.Options{DataDir: app.config.Store.PebbleDir})
		if err != nil {
			return fmt.Errorf("failed to open pebble store: %w", err)
		}
		app.pebble = pdb
		app.pool = pebblestore.NewTaskPool(pdb, app.logger)
		app.archive = pebblestore.NewArchiveStore(pdb, app.logger)
		app.users = pebblestore.NewUserStore(pdb, app.logger)
		app.logger.Info("Pebble store opened", slog.String("dir", app.config.Store.PebbleDir))

	case config.DriverMemory:
		app.pool = memory.NewTaskPool(app.logger)
		app.archive = memory.NewArchiveStore(app.logger)
		app.users = memory.NewUserStore(app.logger)
		app.logger.Warn("Using in-memory store; all state is lost on exit")

	default:
		return fmt.Errorf("unknown store driver %q", app.config.Store.Driver)
	}
	return nil
}

// importTasks inserts tasks in one transaction on postgres, one by one elsewhere.
func (app *application) importTasks(ctx context.Context, tasks []*domain.Task) error {
	if app.db != nil {
		return postgres.InsertBatch(ctx, app.db, tasks, app.logger)
	}
	for _, t := range tasks {
		if err := app.pool.Insert(ctx, t); err != nil {
			return fmt.Errorf("failed to import task %s: %w", t.ID, err)
		}
	}
	return nil
}

// Run serves HTTP until ctx is canceled.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", slog.String("error", err.Error()))
		}
	}
	if app.pebble != nil {
		if err := app.pebble.Close(); err != nil {
			app.logger.Error("Error closing pebble store", slog.String("error", err.Error()))
		}
	}
	app.logger.Info("Application shutdown completed")
}
