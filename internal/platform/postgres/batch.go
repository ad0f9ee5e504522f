package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/store"
)

// InsertBatch inserts tasks in a single transaction: either every task
// lands in the pool or none does.
func InsertBatch(ctx context.Context, db *sql.DB, tasks []*domain.Task, logger *slog.Logger) error {
	return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		pool := NewPostgresTaskPool(tx, logger)
		for i, task := range tasks {
			if err := pool.Insert(ctx, task); err != nil {
				return fmt.Errorf("task %d (%s): %w", i, task.ID, err)
			}
		}
		return nil
	})
}
