package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"
)

// MigrationsTable is the goose version table.
const MigrationsTable = "schema_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration commands accepted by Migrate.
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateStatus  = "status"
	MigrateVersion = "version"
)

// slogGooseLogger adapts slog to goose's logger interface.
type slogGooseLogger struct {
	logger *slog.Logger
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Migrate runs a goose command against db using the embedded migrations.
func Migrate(ctx context.Context, db *sql.DB, command string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(
		slog.String("component", "migrations"),
		slog.String("command", command))

	goose.SetLogger(&slogGooseLogger{logger: log})
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(MigrationsTable)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	var err error
	switch command {
	case MigrateUp:
		err = goose.UpContext(ctx, db, "migrations")
	case MigrateDown:
		err = goose.DownContext(ctx, db, "migrations")
	case MigrateStatus:
		err = goose.StatusContext(ctx, db, "migrations")
	case MigrateVersion:
		var version int64
		version, err = goose.GetDBVersionContext(ctx, db)
		if err == nil {
			log.Info("current migration version", slog.Int64("version", version))
		}
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		log.Error("migration failed", slog.String("error", err.Error()))
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	log.Info("migration finished")
	return nil
}
