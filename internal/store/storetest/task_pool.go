package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/store"
)

// TaskPoolFactory returns an empty pool for one subtest.
type TaskPoolFactory func(t *testing.T) store.TaskPool

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const ttl = 5 * time.Minute

// NewTask builds a valid unleased task for the suite.
func NewTask(t *testing.T, group string, seq int64) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(group, seq, domain.Payload{
		"label": "L" + uuid.NewString()[:4],
		"url":   "(NA)",
	})
	require.NoError(t, err)
	return task
}

func insert(t *testing.T, pool store.TaskPool, tasks ...*domain.Task) {
	t.Helper()
	for _, task := range tasks {
		require.NoError(t, pool.Insert(context.Background(), task))
	}
}

func lease(holder string, at time.Time) domain.Lease {
	return domain.Lease{Holder: holder, AcquiredAt: at}
}

// RunTaskPoolTests exercises the store.TaskPool contract.
func RunTaskPoolTests(t *testing.T, newPool TaskPoolFactory) {
	ctx := context.Background()

	t.Run("InsertAndGet", func(t *testing.T) {
		pool := newPool(t)
		task := NewTask(t, "S1", 1)
		insert(t, pool, task)

		got, err := pool.Get(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, "S1", got.GroupKey)
		assert.Equal(t, task.Payload["label"], got.Payload["label"])
		assert.Nil(t, got.Lease)

		assert.ErrorIs(t, pool.Insert(ctx, task), store.ErrDuplicate)

		_, err = pool.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, store.ErrTaskNotFound)

		ok, err := pool.Exists(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("AcquireNextOrdersBySequence", func(t *testing.T) {
		pool := newPool(t)
		a, b := NewTask(t, "S1", 1), NewTask(t, "S1", 2)
		insert(t, pool, b, a)

		got, err := pool.AcquireNext(ctx, store.Eligible("S1", "x", baseTime, ttl), lease("x", baseTime))
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		require.NotNil(t, got.Lease)
		assert.Equal(t, "x", got.Lease.Holder)
		assert.True(t, got.Lease.AcquiredAt.Equal(baseTime))

		got, err = pool.AcquireNext(ctx, store.Eligible("S1", "y", baseTime, ttl), lease("y", baseTime))
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)

		_, err = pool.AcquireNext(ctx, store.Eligible("S1", "z", baseTime, ttl), lease("z", baseTime))
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("AcquireNextFiltersGroup", func(t *testing.T) {
		pool := newPool(t)
		a, b := NewTask(t, "S1", 1), NewTask(t, "S2", 0)
		insert(t, pool, a, b)

		got, err := pool.AcquireNext(ctx, store.Eligible("S1", "x", baseTime, ttl), lease("x", baseTime))
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)

		got, err = pool.AcquireNext(ctx, store.Eligible("", "y", baseTime, ttl), lease("y", baseTime))
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
	})

	t.Run("AcquireNextReclaimsExpiredAndRefetchesOwn", func(t *testing.T) {
		pool := newPool(t)
		a := NewTask(t, "S1", 1)
		insert(t, pool, a)

		_, err := pool.AcquireNext(ctx, store.Eligible("", "x", baseTime, ttl), lease("x", baseTime))
		require.NoError(t, err)

		again, err := pool.AcquireNext(ctx, store.Eligible("", "x", baseTime.Add(time.Minute), ttl), lease("x", baseTime.Add(time.Minute)))
		require.NoError(t, err)
		assert.Equal(t, a.ID, again.ID)

		justBefore := baseTime.Add(time.Minute + ttl)
		_, err = pool.AcquireNext(ctx, store.Eligible("", "y", justBefore, ttl), lease("y", justBefore))
		assert.ErrorIs(t, err, store.ErrTaskNotFound)

		after := justBefore.Add(time.Millisecond)
		stolen, err := pool.AcquireNext(ctx, store.Eligible("", "y", after, ttl), lease("y", after))
		require.NoError(t, err)
		assert.Equal(t, a.ID, stolen.ID)
		assert.Equal(t, "y", stolen.Lease.Holder)
	})

	t.Run("AcquireNextPrefersDeferredAndClearsDeferral", func(t *testing.T) {
		pool := newPool(t)
		a, b, c := NewTask(t, "S1", 1), NewTask(t, "S1", 2), NewTask(t, "S1", 9)
		insert(t, pool, a, b, c)

		cID := uuid.NewString()
		_, err := pool.Requeue(ctx, store.Match{ID: c.ID, AllowUnleased: true}, cID, baseTime)
		require.NoError(t, err)
		bID := uuid.NewString()
		_, err = pool.Requeue(ctx, store.Match{ID: b.ID, AllowUnleased: true}, bID, baseTime.Add(time.Second))
		require.NoError(t, err)

		var order []string
		for _, who := range []string{"p", "q", "r"} {
			got, err := pool.AcquireNext(ctx, store.Eligible("S1", who, baseTime, ttl), lease(who, baseTime))
			require.NoError(t, err)
			assert.Nil(t, got.DeferredAt)
			order = append(order, got.ID)
		}
		assert.Equal(t, []string{cID, bID, a.ID}, order)

		stored, err := pool.Get(ctx, cID)
		require.NoError(t, err)
		assert.Nil(t, stored.DeferredAt)
	})

	t.Run("Renew", func(t *testing.T) {
		pool := newPool(t)
		a := NewTask(t, "S1", 1)
		insert(t, pool, a)
		_, err := pool.AcquireNext(ctx, store.Eligible("", "x", baseTime, ttl), lease("x", baseTime))
		require.NoError(t, err)

		later := baseTime.Add(4 * time.Minute)
		require.NoError(t, pool.Renew(ctx, a.ID, "x", later))
		got, err := pool.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, got.Lease.AcquiredAt.Equal(later))

		assert.ErrorIs(t, pool.Renew(ctx, a.ID, "y", later), store.ErrTaskNotFound)
		assert.ErrorIs(t, pool.Renew(ctx, uuid.NewString(), "x", later), store.ErrTaskNotFound)
	})

	t.Run("Release", func(t *testing.T) {
		pool := newPool(t)
		a := NewTask(t, "S1", 1)
		insert(t, pool, a)
		_, err := pool.AcquireNext(ctx, store.Eligible("", "x", baseTime, ttl), lease("x", baseTime))
		require.NoError(t, err)

		err = pool.Release(ctx, store.Match{ID: a.ID, Holder: "y", AllowUnleased: true})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)

		require.NoError(t, pool.Release(ctx, store.Match{ID: a.ID, Holder: "x", AllowUnleased: true}))
		got, err := pool.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Lease)

		require.NoError(t, pool.Release(ctx, store.Match{ID: a.ID, Holder: "y", AllowUnleased: true}))
	})

	t.Run("Requeue", func(t *testing.T) {
		pool := newPool(t)
		a := NewTask(t, "S1", 4)
		insert(t, pool, a)
		_, err := pool.AcquireNext(ctx, store.Eligible("", "x", baseTime, ttl), lease("x", baseTime))
		require.NoError(t, err)

		m := store.Match{ID: a.ID, Holder: "y", AllowUnleased: true, ExpiredBefore: baseTime.Add(-ttl)}
		_, err = pool.Requeue(ctx, m, uuid.NewString(), baseTime)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)

		newID := uuid.NewString()
		m.Holder = "x"
		got, err := pool.Requeue(ctx, m, newID, baseTime.Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, newID, got.ID)
		assert.Nil(t, got.Lease)
		require.NotNil(t, got.DeferredAt)
		assert.Equal(t, int64(4), got.SequenceKey)
		assert.Equal(t, a.Payload["label"], got.Payload["label"])

		ok, err := pool.Exists(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Remove", func(t *testing.T) {
		pool := newPool(t)
		a := NewTask(t, "S1", 1)
		insert(t, pool, a)
		_, err := pool.AcquireNext(ctx, store.Eligible("", "x", baseTime, ttl), lease("x", baseTime))
		require.NoError(t, err)

		_, err = pool.Remove(ctx, store.Match{ID: a.ID, Holder: "y"})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)

		removed, err := pool.Remove(ctx, store.Match{ID: a.ID, Holder: "x"})
		require.NoError(t, err)
		assert.Equal(t, a.ID, removed.ID)

		_, err = pool.Remove(ctx, store.Match{ID: a.ID, Holder: "x"})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("UpdatePayloadField", func(t *testing.T) {
		pool := newPool(t)
		a := NewTask(t, "S1", 1)
		insert(t, pool, a)

		require.NoError(t, pool.UpdatePayloadField(ctx, a.ID, "url", "https://example.com/x"))
		got, err := pool.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/x", got.Payload["url"])
		assert.Equal(t, a.Payload["label"], got.Payload["label"])

		err = pool.UpdatePayloadField(ctx, uuid.NewString(), "url", "x")
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})

	t.Run("DistinctGroupsAndStats", func(t *testing.T) {
		pool := newPool(t)
		insert(t, pool, NewTask(t, "S2", 1), NewTask(t, "S1", 1), NewTask(t, "S1", 2), NewTask(t, "S1", 3))

		groups, err := pool.DistinctGroups(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"S1", "S2"}, groups)

		first, err := pool.AcquireNext(ctx, store.Eligible("S1", "x", baseTime, ttl), lease("x", baseTime))
		require.NoError(t, err)
		_, err = pool.AcquireNext(ctx, store.Eligible("S1", "y", baseTime, ttl), lease("y", baseTime.Add(time.Minute)))
		require.NoError(t, err)

		stats, err := pool.Stats(ctx, "S1", baseTime.Add(-ttl))
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Total)
		assert.Equal(t, 2, stats.Leased)
		require.NotNil(t, stats.Oldest)
		assert.Equal(t, first.ID, stats.Oldest.TaskID)
		assert.Equal(t, "x", stats.Oldest.Holder)

		stats, err = pool.Stats(ctx, "S1", baseTime.Add(30*time.Second))
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Leased)

		all, err := pool.Stats(ctx, "", baseTime.Add(-ttl))
		require.NoError(t, err)
		assert.Equal(t, 4, all.Total)
	})

	t.Run("ExpiryBoundaryIsStrict", func(t *testing.T) {
		pool := newPool(t)
		task := NewTask(t, "S1", 1)
		insert(t, pool, task)
		_, err := pool.AcquireNext(ctx, store.Eligible("S1", "alice", baseTime, ttl), lease("alice", baseTime))
		require.NoError(t, err)

		atExpiry := baseTime.Add(ttl)
		_, err = pool.AcquireNext(ctx, store.Eligible("S1", "bob", atExpiry, ttl), lease("bob", atExpiry))
		assert.ErrorIs(t, err, store.ErrNotFound)

		past := atExpiry.Add(time.Microsecond)
		got, err := pool.AcquireNext(ctx, store.Eligible("S1", "bob", past, ttl), lease("bob", past))
		require.NoError(t, err)
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, "bob", got.Lease.Holder)
	})

	t.Run("ConcurrentAcquireNeverSharesTask", func(t *testing.T) {
		pool := newPool(t)
		const tasks, workers = 5, 20
		for i := 0; i < tasks; i++ {
			insert(t, pool, NewTask(t, "S1", int64(i)))
		}

		var (
			mu    sync.Mutex
			wg    sync.WaitGroup
			owner  = map[string]string{}
			dup    []string
			failed []error
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(who string) {
				defer wg.Done()
				got, err := pool.AcquireNext(ctx, store.Eligible("S1", who, baseTime, ttl), lease(who, baseTime))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if !errors.Is(err, store.ErrNotFound) {
						failed = append(failed, err)
					}
					return
				}
				if prev, ok := owner[got.ID]; ok {
					dup = append(dup, prev+"/"+who)
				}
				owner[got.ID] = who
			}(uuid.NewString())
		}
		wg.Wait()

		assert.Empty(t, failed)
		assert.Empty(t, dup)
		assert.Len(t, owner, tasks)
	})
}
