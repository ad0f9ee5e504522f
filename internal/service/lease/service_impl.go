package lease

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store"
)

// Verify interface compliance at compile time
var _ LeaseManager = (*leaseManagerImpl)(nil)

type leaseManagerImpl struct {
	pool   store.TaskPool
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option customizes a LeaseManager.
type Option func(*leaseManagerImpl)

// WithClock replaces time.Now, for tests that step through lease expiry.
func WithClock(now func() time.Time) Option {
	return func(m *leaseManagerImpl) {
		m.now = now
	}
}

// NewLeaseManager creates a LeaseManager over pool with the given lease TTL.
func NewLeaseManager(pool store.TaskPool, ttl time.Duration, logger *slog.Logger, opts ...Option) LeaseManager {
	if pool == nil {
		panic("pool cannot be nil")
	}
	if ttl <= 0 {
		panic("lease ttl must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &leaseManagerImpl{
		pool:   pool,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(slog.String("component", "lease_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *leaseManagerImpl) TTL() time.Duration {
	return m.ttl
}

// AcquireNext implements LeaseManager.AcquireNext.
func (m *leaseManagerImpl) AcquireNext(ctx context.Context, groupKey, identity string) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, m.logger)
	if identity == "" {
		return nil, ErrMissingIdentity
	}

	now := m.now().UTC()
	task, err := m.pool.AcquireNext(ctx,
		store.Eligible(groupKey, identity, now, m.ttl),
		domain.Lease{Holder: identity, AcquiredAt: now})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("no eligible task",
				slog.String("group_key", groupKey),
				slog.String("identity", identity))
			return nil, ErrNoEligibleTask
		}
		log.Error("failed to acquire task",
			slog.String("error", err.Error()),
			slog.String("group_key", groupKey))
		return nil, NewServiceError("acquire_next", "failed to acquire task", err)
	}

	log.Info("task leased",
		slog.String("task_id", task.ID),
		slog.String("group_key", task.GroupKey),
		slog.String("identity", identity))
	return task, nil
}

// Renew implements LeaseManager.Renew.
func (m *leaseManagerImpl) Renew(ctx context.Context, taskID, identity string) error {
	log := logger.FromContextOrDefault(ctx, m.logger)
	if err := requireArgs(taskID, identity); err != nil {
		return err
	}

	err := m.pool.Renew(ctx, taskID, identity, m.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("renew rejected",
				slog.String("task_id", taskID),
				slog.String("identity", identity))
			return ErrLeaseNotOwned
		}
		log.Error("failed to renew lease",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID))
		return NewServiceError("renew", "failed to renew lease", err)
	}

	log.Debug("lease renewed",
		slog.String("task_id", taskID),
		slog.String("identity", identity))
	return nil
}

// Release implements LeaseManager.Release.
func (m *leaseManagerImpl) Release(ctx context.Context, taskID, identity string) error {
	log := logger.FromContextOrDefault(ctx, m.logger)
	if err := requireArgs(taskID, identity); err != nil {
		return err
	}

	err := m.pool.Release(ctx, store.Match{ID: taskID, Holder: identity, AllowUnleased: true})
	if err == nil {
		log.Info("lease released",
			slog.String("task_id", taskID),
			slog.String("identity", identity))
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to release lease",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID))
		return NewServiceError("release", "failed to release lease", err)
	}

	// The conditional clear matched nothing: either the task is gone or
	// someone else holds it. Only the latter is an error.
	exists, err := m.pool.Exists(ctx, taskID)
	if err != nil {
		return NewServiceError("release", "failed to look up task", err)
	}
	if !exists {
		log.Debug("release of missing task ignored", slog.String("task_id", taskID))
		return nil
	}

	log.Warn("release rejected",
		slog.String("task_id", taskID),
		slog.String("identity", identity))
	return ErrLeaseOwnedByOther
}

// Status implements LeaseManager.Status.
func (m *leaseManagerImpl) Status(ctx context.Context, groupKey string) (*Status, error) {
	activeSince := m.now().UTC().Add(-m.ttl)
	stats, err := m.pool.Stats(ctx, groupKey, activeSince)
	if err != nil {
		logger.FromContextOrDefault(ctx, m.logger).Error("failed to read pool status",
			slog.String("error", err.Error()),
			slog.String("group_key", groupKey))
		return nil, NewServiceError("status", "failed to read pool status", err)
	}

	st := &Status{GroupKey: groupKey, Total: stats.Total, Leased: stats.Leased}
	if stats.Oldest != nil {
		st.NextExpiry = &ExpiryInfo{
			TaskID:     stats.Oldest.TaskID,
			Holder:     stats.Oldest.Holder,
			AcquiredAt: stats.Oldest.AcquiredAt,
			ExpiresAt:  stats.Oldest.AcquiredAt.Add(m.ttl),
		}
	}
	return st, nil
}

// ListGroups implements LeaseManager.ListGroups.
func (m *leaseManagerImpl) ListGroups(ctx context.Context) ([]string, error) {
	groups, err := m.pool.DistinctGroups(ctx)
	if err != nil {
		logger.FromContextOrDefault(ctx, m.logger).Error("failed to list groups",
			slog.String("error", err.Error()))
		return nil, NewServiceError("list_groups", "failed to list groups", err)
	}
	return groups, nil
}

func requireArgs(taskID, identity string) error {
	if taskID == "" {
		return ErrMissingTaskID
	}
	if identity == "" {
		return ErrMissingIdentity
	}
	return nil
}
