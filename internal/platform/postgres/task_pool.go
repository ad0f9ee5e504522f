package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store"
)

const taskColumns = `id, group_key, sequence_key, payload, lease_holder, lease_acquired_at, deferred_at, created_at`

// PostgresTaskPool implements the store.TaskPool interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskPool struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskPool creates a new PostgreSQL implementation of the TaskPool interface.
// It accepts a database connection or transaction that should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskPool(db store.DBTX, logger *slog.Logger) *PostgresTaskPool {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskPool{
		db:     db,
		logger: logger.With(slog.String("component", "task_pool")),
	}
}

// Ensure PostgresTaskPool implements store.TaskPool interface
var _ store.TaskPool = (*PostgresTaskPool)(nil)

// Insert implements store.TaskPool.Insert
func (s *PostgresTaskPool) Insert(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during insert",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID))
		return store.NewStoreError("task", "insert", "invalid task", err)
	}

	payload, err := encodePayload(task.Payload)
	if err != nil {
		return store.NewStoreError("task", "insert", "encode payload", err)
	}

	var holder sql.NullString
	var acquiredAt sql.NullTime
	if task.Lease != nil {
		holder = sql.NullString{String: task.Lease.Holder, Valid: true}
		acquiredAt = sql.NullTime{Time: task.Lease.AcquiredAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO record_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.GroupKey,
		task.SequenceKey,
		payload,
		holder,
		acquiredAt,
		nullTime(task.DeferredAt),
		task.CreatedAt.UTC(),
	)
	if err != nil {
		log.Error("failed to insert task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID))
		return MapUniqueViolation(err, store.ErrTaskExists)
	}

	log.Debug("task inserted",
		slog.String("task_id", task.ID),
		slog.String("group_key", task.GroupKey))
	return nil
}

// Get implements store.TaskPool.Get
func (s *PostgresTaskPool) Get(ctx context.Context, id string) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM record_tasks WHERE id = $1`
	return s.queryTask(ctx, "get", query, id)
}

// Exists implements store.TaskPool.Exists
func (s *PostgresTaskPool) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM record_tasks WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to check task existence",
			slog.String("error", err.Error()),
			slog.String("task_id", id))
		return false, MapError(err)
	}
	return exists, nil
}

// AcquireNext implements store.TaskPool.AcquireNext.
// The inner SELECT locks the chosen row and skips rows locked by concurrent
// acquires, so the UPDATE always writes a row no one else is claiming.
func (s *PostgresTaskPool) AcquireNext(
	ctx context.Context,
	m store.Match,
	lease domain.Lease,
) (*domain.Task, error) {
	where, args := matchClause(m, []any{lease.Holder, lease.AcquiredAt.UTC()})
	query := `
		UPDATE record_tasks
		SET lease_holder = $1, lease_acquired_at = $2, deferred_at = NULL
		WHERE id = (
			SELECT id FROM record_tasks
			WHERE ` + where + `
			ORDER BY deferred_at ASC NULLS LAST, sequence_key ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + taskColumns
	return s.queryTask(ctx, "acquire", query, args...)
}

// Renew implements store.TaskPool.Renew
func (s *PostgresTaskPool) Renew(ctx context.Context, id, holder string, now time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE record_tasks
		SET lease_acquired_at = $3
		WHERE id = $1 AND lease_holder = $2
	`, id, holder, now.UTC())
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to renew lease",
			slog.String("error", err.Error()),
			slog.String("task_id", id))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// Release implements store.TaskPool.Release
func (s *PostgresTaskPool) Release(ctx context.Context, m store.Match) error {
	where, args := matchClause(m, nil)
	result, err := s.db.ExecContext(ctx, `
		UPDATE record_tasks
		SET lease_holder = NULL, lease_acquired_at = NULL
		WHERE `+where, args...)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to release lease",
			slog.String("error", err.Error()),
			slog.String("task_id", m.ID))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// Requeue implements store.TaskPool.Requeue.
// The delete and reinsert run as one statement through a data-modifying CTE.
func (s *PostgresTaskPool) Requeue(
	ctx context.Context,
	m store.Match,
	newID string,
	deferredAt time.Time,
) (*domain.Task, error) {
	where, args := matchClause(m, []any{newID, deferredAt.UTC()})
	query := `
		WITH removed AS (
			DELETE FROM record_tasks
			WHERE ` + where + `
			RETURNING group_key, sequence_key, payload, created_at
		)
		INSERT INTO record_tasks (id, group_key, sequence_key, payload, deferred_at, created_at)
		SELECT $1, group_key, sequence_key, payload, $2, created_at FROM removed
		RETURNING ` + taskColumns
	return s.queryTask(ctx, "requeue", query, args...)
}

// Remove implements store.TaskPool.Remove
func (s *PostgresTaskPool) Remove(ctx context.Context, m store.Match) (*domain.Task, error) {
	where, args := matchClause(m, nil)
	query := `DELETE FROM record_tasks WHERE ` + where + ` RETURNING ` + taskColumns
	return s.queryTask(ctx, "remove", query, args...)
}

// UpdatePayloadField implements store.TaskPool.UpdatePayloadField
func (s *PostgresTaskPool) UpdatePayloadField(ctx context.Context, id, field string, value any) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	encoded, err := json.Marshal(value)
	if err != nil {
		return store.NewStoreError("task", "update", "encode field value", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE record_tasks
		SET payload = jsonb_set(payload, ARRAY[$2::text], $3::jsonb, true)
		WHERE id = $1
	`, id, field, string(encoded))
	if err != nil {
		log.Error("failed to update task payload",
			slog.String("error", err.Error()),
			slog.String("task_id", id),
			slog.String("field", field))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// DistinctGroups implements store.TaskPool.DistinctGroups
func (s *PostgresTaskPool) DistinctGroups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT group_key FROM record_tasks ORDER BY group_key`)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to list groups",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	groups := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating group rows: %w", err)
	}
	return groups, nil
}

// Stats implements store.TaskPool.Stats
func (s *PostgresTaskPool) Stats(
	ctx context.Context,
	groupKey string,
	activeSince time.Time,
) (store.PoolStats, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	var stats store.PoolStats

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE lease_acquired_at >= $2)
		FROM record_tasks
		WHERE ($1 = '' OR group_key = $1)
	`, groupKey, activeSince.UTC()).Scan(&stats.Total, &stats.Leased)
	if err != nil {
		log.Error("failed to count tasks",
			slog.String("error", err.Error()),
			slog.String("group_key", groupKey))
		return stats, MapError(err)
	}
	if stats.Leased == 0 {
		return stats, nil
	}

	var oldest store.ActiveLease
	err = s.db.QueryRowContext(ctx, `
		SELECT id, lease_holder, lease_acquired_at
		FROM record_tasks
		WHERE ($1 = '' OR group_key = $1) AND lease_acquired_at >= $2
		ORDER BY lease_acquired_at ASC, id ASC
		LIMIT 1
	`, groupKey, activeSince.UTC()).Scan(&oldest.TaskID, &oldest.Holder, &oldest.AcquiredAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// released between the two reads
		return stats, nil
	case err != nil:
		log.Error("failed to find oldest lease",
			slog.String("error", err.Error()),
			slog.String("group_key", groupKey))
		return stats, MapError(err)
	}
	oldest.AcquiredAt = oldest.AcquiredAt.UTC()
	stats.Oldest = &oldest
	return stats, nil
}

// queryTask runs a statement returning at most one task row.
func (s *PostgresTaskPool) queryTask(
	ctx context.Context,
	op, query string,
	args ...any,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("no task matched", slog.String("operation", op))
			return nil, store.ErrTaskNotFound
		}
		log.Error("task query failed",
			slog.String("error", err.Error()),
			slog.String("operation", op))
		return nil, MapError(err)
	}
	return task, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		payload    []byte
		holder     sql.NullString
		acquiredAt sql.NullTime
		deferredAt sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.GroupKey,
		&task.SequenceKey,
		&payload,
		&holder,
		&acquiredAt,
		&deferredAt,
		&task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Payload = domain.Payload{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode task payload: %w", err)
		}
	}
	if holder.Valid && acquiredAt.Valid {
		task.Lease = &domain.Lease{Holder: holder.String, AcquiredAt: acquiredAt.Time.UTC()}
	}
	if deferredAt.Valid {
		d := deferredAt.Time.UTC()
		task.DeferredAt = &d
	}
	task.CreatedAt = task.CreatedAt.UTC()
	return &task, nil
}

// matchClause renders m as a WHERE clause whose placeholders continue after args.
func matchClause(m store.Match, args []any) (string, []any) {
	var conds []string
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if m.ID != "" {
		conds = append(conds, "id = "+bind(m.ID))
	}
	if m.GroupKey != "" {
		conds = append(conds, "group_key = "+bind(m.GroupKey))
	}
	if m.HasOwnershipClause() {
		var ownership []string
		if m.AllowUnleased {
			ownership = append(ownership, "lease_holder IS NULL")
		}
		if !m.ExpiredBefore.IsZero() {
			ownership = append(ownership, "lease_acquired_at < "+bind(m.ExpiredBefore.UTC()))
		}
		if m.Holder != "" {
			ownership = append(ownership, "lease_holder = "+bind(m.Holder))
		}
		conds = append(conds, "("+strings.Join(ownership, " OR ")+")")
	}

	if len(conds) == 0 {
		return "TRUE", args
	}
	return strings.Join(conds, " AND "), args
}

func encodePayload(p domain.Payload) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
