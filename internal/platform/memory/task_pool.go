package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store"
)

// TaskPool is a mutex-guarded in-memory implementation of store.TaskPool.
type TaskPool struct {
	mu     sync.Mutex
	tasks  map[string]*domain.Task
	logger *slog.Logger
}

var _ store.TaskPool = (*TaskPool)(nil)

// NewTaskPool creates an empty pool.
func NewTaskPool(log *slog.Logger) *TaskPool {
	if log == nil {
		log = slog.Default()
	}
	return &TaskPool{
		tasks:  make(map[string]*domain.Task),
		logger: log.With(slog.String("component", "memory_task_pool")),
	}
}

// Insert implements store.TaskPool.
func (p *TaskPool) Insert(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "insert", "invalid task", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.tasks[task.ID]; ok {
		return store.ErrTaskExists
	}
	p.tasks[task.ID] = task.Clone()

	logger.FromContextOrDefault(ctx, p.logger).Debug("task inserted",
		slog.String("task_id", task.ID),
		slog.String("group_key", task.GroupKey))
	return nil
}

// Get implements store.TaskPool.
func (p *TaskPool) Get(_ context.Context, id string) (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return t.Clone(), nil
}

// Exists implements store.TaskPool.
func (p *TaskPool) Exists(_ context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.tasks[id]
	return ok, nil
}

// AcquireNext implements store.TaskPool.
func (p *TaskPool) AcquireNext(_ context.Context, m store.Match, lease domain.Lease) (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := p.firstLocked(m)
	if t == nil {
		return nil, store.ErrTaskNotFound
	}
	l := lease
	t.Lease = &l
	t.DeferredAt = nil
	return t.Clone(), nil
}

// Renew implements store.TaskPool.
func (p *TaskPool) Renew(_ context.Context, id, holder string, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[id]
	if !ok || !t.IsLeasedBy(holder) {
		return store.ErrTaskNotFound
	}
	t.Lease.AcquiredAt = now
	return nil
}

// Release implements store.TaskPool.
func (p *TaskPool) Release(_ context.Context, m store.Match) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[m.ID]
	if !ok || !m.Matches(t) {
		return store.ErrTaskNotFound
	}
	t.Lease = nil
	return nil
}

// Requeue implements store.TaskPool.
func (p *TaskPool) Requeue(_ context.Context, m store.Match, newID string, deferredAt time.Time) (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[m.ID]
	if !ok || !m.Matches(t) {
		return nil, store.ErrTaskNotFound
	}
	if _, taken := p.tasks[newID]; taken && newID != m.ID {
		return nil, store.ErrTaskExists
	}
	requeued := t.Deferred(newID, deferredAt)
	delete(p.tasks, m.ID)
	p.tasks[newID] = requeued
	return requeued.Clone(), nil
}

// Remove implements store.TaskPool.
func (p *TaskPool) Remove(_ context.Context, m store.Match) (*domain.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[m.ID]
	if !ok || !m.Matches(t) {
		return nil, store.ErrTaskNotFound
	}
	delete(p.tasks, m.ID)
	return t, nil
}

// UpdatePayloadField implements store.TaskPool.
func (p *TaskPool) UpdatePayloadField(_ context.Context, id, field string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Payload == nil {
		t.Payload = domain.Payload{}
	}
	t.Payload[field] = value
	return nil
}

// DistinctGroups implements store.TaskPool.
func (p *TaskPool) DistinctGroups(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seen := make(map[string]struct{})
	groups := []string{}
	for _, t := range p.tasks {
		if _, ok := seen[t.GroupKey]; ok {
			continue
		}
		seen[t.GroupKey] = struct{}{}
		groups = append(groups, t.GroupKey)
	}
	sort.Strings(groups)
	return groups, nil
}

// Stats implements store.TaskPool.
func (p *TaskPool) Stats(_ context.Context, groupKey string, activeSince time.Time) (store.PoolStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stats store.PoolStats
	for _, t := range p.tasks {
		if groupKey != "" && t.GroupKey != groupKey {
			continue
		}
		stats.Total++
		if t.Lease == nil || t.Lease.AcquiredAt.Before(activeSince) {
			continue
		}
		stats.Leased++
		if stats.Oldest == nil || t.Lease.AcquiredAt.Before(stats.Oldest.AcquiredAt) {
			stats.Oldest = &store.ActiveLease{
				TaskID:     t.ID,
				Holder:     t.Lease.Holder,
				AcquiredAt: t.Lease.AcquiredAt,
			}
		}
	}
	return stats, nil
}

// firstLocked returns the live pointer of the first matching task in
// selection order. Callers must hold p.mu.
func (p *TaskPool) firstLocked(m store.Match) *domain.Task {
	var best *domain.Task
	for _, t := range p.tasks {
		if !m.Matches(t) {
			continue
		}
		if best == nil || domain.Less(t, best) {
			best = t
		}
	}
	return best
}
