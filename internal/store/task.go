package store

import (
	"context"
	"time"

	"github.com/qcsys/recordq/internal/domain"
)

// Match is the filter of a conditional pool operation.
//
// ID and GroupKey narrow the candidate set when non-empty. The ownership
// clause is satisfied when any enabled disjunct holds: AllowUnleased and the
// task has no lease, ExpiredBefore is set and the lease was acquired before
// it, or Holder is set and equals the lease holder. A Match with none of the
// three enabled accepts every candidate.
type Match struct {
	ID            string
	GroupKey      string
	Holder        string
	AllowUnleased bool
	ExpiredBefore time.Time
}

// Eligible returns the acquire filter for identity at now: unleased,
// expired, or already held by identity.
func Eligible(groupKey, identity string, now time.Time, ttl time.Duration) Match {
	return Match{
		GroupKey:      groupKey,
		Holder:        identity,
		AllowUnleased: true,
		ExpiredBefore: now.Add(-ttl),
	}
}

// HasOwnershipClause reports whether any ownership disjunct is enabled.
func (m Match) HasOwnershipClause() bool {
	return m.AllowUnleased || m.Holder != "" || !m.ExpiredBefore.IsZero()
}

// Matches evaluates the filter against t. Stores that cannot push the filter
// down into a query use it while holding their write lock.
func (m Match) Matches(t *domain.Task) bool {
	if m.ID != "" && t.ID != m.ID {
		return false
	}
	if m.GroupKey != "" && t.GroupKey != m.GroupKey {
		return false
	}
	if !m.HasOwnershipClause() {
		return true
	}
	if m.AllowUnleased && t.Lease == nil {
		return true
	}
	if t.Lease == nil {
		return false
	}
	if !m.ExpiredBefore.IsZero() && t.Lease.AcquiredAt.Before(m.ExpiredBefore) {
		return true
	}
	return m.Holder != "" && t.Lease.Holder == m.Holder
}

// ActiveLease identifies the oldest lease still protecting its task.
type ActiveLease struct {
	TaskID     string
	Holder     string
	AcquiredAt time.Time
}

// PoolStats summarizes one group (or the whole pool).
type PoolStats struct {
	Total  int
	Leased int
	Oldest *ActiveLease
}

// TaskPool is the shared store of active tasks.
type TaskPool interface {
	// Insert adds an unleased task. Returns ErrTaskExists on ID collision.
	Insert(ctx context.Context, task *domain.Task) error

	// Get returns a copy of the task. Returns ErrTaskNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// Exists reports whether a task with id is pooled.
	Exists(ctx context.Context, id string) (bool, error)

	// AcquireNext selects the first task matching m in selection order
	// (deferred tier by DeferredAt, then never deferred; SequenceKey; ID),
	// sets its lease to lease and clears DeferredAt, all in one atomic step.
	// Returns ErrTaskNotFound when nothing matches.
	AcquireNext(ctx context.Context, m Match, lease domain.Lease) (*domain.Task, error)

	// Renew moves the lease acquisition time of task id to now if holder
	// holds it. Returns ErrTaskNotFound when the condition fails.
	Renew(ctx context.Context, id, holder string, now time.Time) error

	// Release clears the lease of the task matching m (m.ID must be set).
	// Returns ErrTaskNotFound when nothing matches.
	Release(ctx context.Context, m Match) error

	// Requeue atomically removes the task matching m and reinserts its
	// content under newID, unleased, with DeferredAt set to deferredAt.
	// Returns ErrTaskNotFound when nothing matches.
	Requeue(ctx context.Context, m Match, newID string, deferredAt time.Time) (*domain.Task, error)

	// Remove deletes the task matching m and returns it.
	// Returns ErrTaskNotFound when nothing matches.
	Remove(ctx context.Context, m Match) (*domain.Task, error)

	// UpdatePayloadField sets one payload field on task id.
	// Returns ErrTaskNotFound if the task is absent.
	UpdatePayloadField(ctx context.Context, id, field string, value any) error

	// DistinctGroups lists every group key present in the pool, sorted.
	DistinctGroups(ctx context.Context) ([]string, error)

	// Stats counts the tasks of groupKey (all groups when empty). A lease
	// counts as active when acquired at or after activeSince.
	Stats(ctx context.Context, groupKey string, activeSince time.Time) (PoolStats, error)
}
