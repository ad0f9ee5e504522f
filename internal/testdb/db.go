package testdb

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/platform/postgres"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 5 * time.Second

// IsIntegrationTestEnvironment returns true if a test database URL is configured.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// GetTestDatabaseURL returns DATABASE_URL, falling back to RECORDQ_TEST_DB_URL.
func GetTestDatabaseURL() string {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL
	}
	return os.Getenv("RECORDQ_TEST_DB_URL")
}

// GetTestDBWithT opens the test database, applies all migrations and
// registers a cleanup that closes the connection. The test is skipped when
// no database is configured.
func GetTestDBWithT(t *testing.T) *sql.DB {
	t.Helper()

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		t.Skip("DATABASE_URL or RECORDQ_TEST_DB_URL not set - skipping integration test")
	}

	db, err := sql.Open("pgx", dbURL)
	require.NoError(t, err, "Failed to open database connection")

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "Database ping failed")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})

	SetupTestDatabaseSchema(t, db)
	return db
}

// SetupTestDatabaseSchema applies the embedded goose migrations.
func SetupTestDatabaseSchema(t *testing.T, db *sql.DB) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(testWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelWarn}))
	err := postgres.Migrate(context.Background(), db, postgres.MigrateUp, log)
	require.NoError(t, err, "Failed to run migrations")
}

// ResetTables empties every application table.
func ResetTables(t *testing.T, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, `TRUNCATE record_tasks, archived_records, users`)
	require.NoError(t, err, "Failed to truncate tables")
}

// WithTx executes a test function within a transaction, automatically rolling back
// after the test completes. This ensures test isolation and prevents side effects.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "Failed to begin transaction")

	defer func() {
		err := tx.Rollback()
		// sql.ErrTxDone is expected if tx is already committed or rolled back
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}

// testWriter routes migration logs into the test output.
type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
