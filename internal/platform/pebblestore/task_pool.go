package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store"
)

// TaskPool implements store.TaskPool on Pebble.
type TaskPool struct {
	db     *DB
	mu     sync.Mutex // serializes read-select-commit sequences
	logger *slog.Logger
}

var _ store.TaskPool = (*TaskPool)(nil)

// NewTaskPool creates a pool over db.
func NewTaskPool(db *DB, log *slog.Logger) *TaskPool {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &TaskPool{
		db:     db,
		logger: log.With(slog.String("component", "pebble_task_pool")),
	}
}

// Insert implements store.TaskPool.
func (p *TaskPool) Insert(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "insert", "invalid task", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.load(task.ID); err == nil {
		return store.ErrTaskExists
	} else if !errors.Is(err, store.ErrTaskNotFound) {
		return err
	}
	if err := p.commit(ctx, task, ""); err != nil {
		return err
	}

	logger.FromContextOrDefault(ctx, p.logger).Debug("task inserted",
		slog.String("task_id", task.ID),
		slog.String("group_key", task.GroupKey))
	return nil
}

// Get implements store.TaskPool.
func (p *TaskPool) Get(_ context.Context, id string) (*domain.Task, error) {
	return p.load(id)
}

// Exists implements store.TaskPool.
func (p *TaskPool) Exists(_ context.Context, id string) (bool, error) {
	_, err := p.load(id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrTaskNotFound):
		return false, nil
	default:
		return false, err
	}
}

// AcquireNext implements store.TaskPool.
func (p *TaskPool) AcquireNext(ctx context.Context, m store.Match, lease domain.Lease) (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *domain.Task
	err := p.scan(func(t *domain.Task) error {
		if m.Matches(t) && (best == nil || domain.Less(t, best)) {
			best = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, store.ErrTaskNotFound
	}

	l := lease
	best.Lease = &l
	best.DeferredAt = nil
	if err := p.commit(ctx, best, ""); err != nil {
		return nil, err
	}
	return best, nil
}

// Renew implements store.TaskPool.
func (p *TaskPool) Renew(ctx context.Context, id, holder string, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.load(id)
	if err != nil {
		return err
	}
	if !t.IsLeasedBy(holder) {
		return store.ErrTaskNotFound
	}
	t.Lease.AcquiredAt = now
	return p.commit(ctx, t, "")
}

// Release implements store.TaskPool.
func (p *TaskPool) Release(ctx context.Context, m store.Match) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.loadMatching(m)
	if err != nil {
		return err
	}
	t.Lease = nil
	return p.commit(ctx, t, "")
}

// Requeue implements store.TaskPool. The delete and the reinsert share one batch.
func (p *TaskPool) Requeue(ctx context.Context, m store.Match, newID string, deferredAt time.Time) (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.loadMatching(m)
	if err != nil {
		return nil, err
	}
	if newID != t.ID {
		if _, err := p.load(newID); err == nil {
			return nil, store.ErrTaskExists
		}
	}

	requeued := t.Deferred(newID, deferredAt)
	if err := p.commit(ctx, requeued, t.ID); err != nil {
		return nil, err
	}
	return requeued, nil
}

// Remove implements store.TaskPool.
func (p *TaskPool) Remove(ctx context.Context, m store.Match) (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.loadMatching(m)
	if err != nil {
		return nil, err
	}
	if err := p.commit(ctx, nil, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdatePayloadField implements store.TaskPool.
func (p *TaskPool) UpdatePayloadField(ctx context.Context, id, field string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.load(id)
	if err != nil {
		return err
	}
	if t.Payload == nil {
		t.Payload = domain.Payload{}
	}
	t.Payload[field] = value
	return p.commit(ctx, t, "")
}

// DistinctGroups implements store.TaskPool.
func (p *TaskPool) DistinctGroups(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	groups := []string{}
	err := p.scan(func(t *domain.Task) error {
		if _, ok := seen[t.GroupKey]; !ok {
			seen[t.GroupKey] = struct{}{}
			groups = append(groups, t.GroupKey)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(groups)
	return groups, nil
}

// Stats implements store.TaskPool.
func (p *TaskPool) Stats(_ context.Context, groupKey string, activeSince time.Time) (store.PoolStats, error) {
	var stats store.PoolStats
	err := p.scan(func(t *domain.Task) error {
		if groupKey != "" && t.GroupKey != groupKey {
			return nil
		}
		stats.Total++
		if t.Lease == nil || t.Lease.AcquiredAt.Before(activeSince) {
			return nil
		}
		stats.Leased++
		if stats.Oldest == nil || t.Lease.AcquiredAt.Before(stats.Oldest.AcquiredAt) {
			stats.Oldest = &store.ActiveLease{
				TaskID:     t.ID,
				Holder:     t.Lease.Holder,
				AcquiredAt: t.Lease.AcquiredAt,
			}
		}
		return nil
	})
	return stats, err
}

func (p *TaskPool) load(id string) (*domain.Task, error) {
	raw, err := p.db.Get(taskKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrTaskNotFound
		}
		return nil, store.NewStoreError("task", "get", "pebble read", err)
	}
	return decodeTask(raw)
}

func (p *TaskPool) loadMatching(m store.Match) (*domain.Task, error) {
	t, err := p.load(m.ID)
	if err != nil {
		return nil, err
	}
	if !m.Matches(t) {
		return nil, store.ErrTaskNotFound
	}
	return t, nil
}

func (p *TaskPool) scan(fn func(t *domain.Task) error) error {
	err := p.db.ScanPrefix([]byte(taskPrefix), func(_, value []byte) error {
		t, err := decodeTask(value)
		if err != nil {
			return err
		}
		return fn(t)
	})
	if err != nil {
		return store.NewStoreError("task", "scan", "pebble iterate", err)
	}
	return nil
}

// commit writes put (when non-nil) and deletes deleteID (when non-empty)
// in one batch.
func (p *TaskPool) commit(ctx context.Context, put *domain.Task, deleteID string) error {
	b := p.db.NewBatch()
	defer func() { _ = b.Close() }()

	if deleteID != "" {
		if err := b.Delete(taskKey(deleteID), nil); err != nil {
			return store.NewStoreError("task", "delete", "pebble batch", err)
		}
	}
	if put != nil {
		raw, err := json.Marshal(put)
		if err != nil {
			return store.NewStoreError("task", "write", "encode task", err)
		}
		if err := b.Set(taskKey(put.ID), raw, nil); err != nil {
			return store.NewStoreError("task", "write", "pebble batch", err)
		}
	}
	if err := p.db.CommitBatch(ctx, b); err != nil {
		logger.FromContextOrDefault(ctx, p.logger).Error("failed to commit task batch",
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "write", "pebble commit", err)
	}
	return nil
}

func decodeTask(raw []byte) (*domain.Task, error) {
	var t domain.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	if t.Payload == nil {
		t.Payload = domain.Payload{}
	}
	return &t, nil
}
