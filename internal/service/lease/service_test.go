package lease_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/platform/memory"
	"github.com/qcsys/recordq/internal/service/lease"
	"github.com/qcsys/recordq/internal/store"
	"github.com/qcsys/recordq/internal/store/storetest"
)

const ttl = 5 * time.Minute

// fakeClock is a settable clock shared by the manager and the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	pool    *memory.TaskPool
	manager lease.LeaseManager
	clock   *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, _ := logger.NewTestLogger()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	pool := memory.NewTaskPool(log)
	return &fixture{
		pool:    pool,
		manager: lease.NewLeaseManager(pool, ttl, log, lease.WithClock(clock.Now)),
		clock:   clock,
	}
}

func (f *fixture) add(t *testing.T, group string, seq int64) *domain.Task {
	t.Helper()
	task := storetest.NewTask(t, group, seq)
	require.NoError(t, f.pool.Insert(context.Background(), task))
	return task
}

func TestAcquireNext(t *testing.T) {
	ctx := context.Background()

	t.Run("picks lowest sequence and sets lease", func(t *testing.T) {
		f := newFixture(t)
		f.add(t, "S1", 2)
		a := f.add(t, "S1", 1)

		got, err := f.manager.AcquireNext(ctx, "S1", "alice")
		require.NoError(t, err)
		assert.Equal(t, a.ID, got.ID)
		require.NotNil(t, got.Lease)
		assert.Equal(t, "alice", got.Lease.Holder)
		assert.True(t, got.Lease.AcquiredAt.Equal(f.clock.Now()))
	})

	t.Run("no eligible task", func(t *testing.T) {
		f := newFixture(t)
		f.add(t, "S1", 1)

		_, err := f.manager.AcquireNext(ctx, "S2", "alice")
		assert.ErrorIs(t, err, lease.ErrNoEligibleTask)
	})

	t.Run("missing identity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.AcquireNext(ctx, "", "")
		assert.ErrorIs(t, err, lease.ErrMissingIdentity)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("same identity refetches its task", func(t *testing.T) {
		f := newFixture(t)
		a := f.add(t, "S1", 1)

		first, err := f.manager.AcquireNext(ctx, "S1", "alice")
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
		second, err := f.manager.AcquireNext(ctx, "S1", "alice")
		require.NoError(t, err)

		assert.Equal(t, a.ID, first.ID)
		assert.Equal(t, a.ID, second.ID)
		assert.Equal(t, "alice", second.Lease.Holder)

		st, err := f.manager.Status(ctx, "S1")
		require.NoError(t, err)
		assert.Equal(t, 1, st.Total)
		assert.Equal(t, 1, st.Leased)
	})
}

func TestConcurrentAcquireIsExclusive(t *testing.T) {
	f := newFixture(t)
	task := f.add(t, "S1", 1)

	const callers = 32
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []string
		failed []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			got, err := f.manager.AcquireNext(context.Background(), "S1", who)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, lease.ErrNoEligibleTask):
			case err != nil:
				failed = append(failed, err)
			case got.ID != task.ID:
				failed = append(failed, fmt.Errorf("%s acquired unexpected task %s", who, got.ID))
			default:
				wins = append(wins, who)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Empty(t, failed)
	assert.Len(t, wins, 1)
}

func TestLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add(t, "S1", 1)

	_, err := f.manager.AcquireNext(ctx, "S1", "alice")
	require.NoError(t, err)

	f.clock.Advance(ttl - time.Second)
	_, err = f.manager.AcquireNext(ctx, "S1", "bob")
	assert.ErrorIs(t, err, lease.ErrNoEligibleTask, "lease still active")

	f.clock.Advance(2 * time.Second)
	got, err := f.manager.AcquireNext(ctx, "S1", "bob")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "bob", got.Lease.Holder)

	assert.ErrorIs(t, f.manager.Renew(ctx, a.ID, "alice"), lease.ErrLeaseNotOwned)
}

func TestLeaseExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add(t, "S1", 1)

	_, err := f.manager.AcquireNext(ctx, "S1", "alice")
	require.NoError(t, err)

	// Expiry is strict: acquiredAt must be before now-ttl.
	f.clock.Advance(ttl)
	_, err = f.manager.AcquireNext(ctx, "S1", "bob")
	assert.ErrorIs(t, err, lease.ErrNoEligibleTask, "lease is still held at exactly acquiredAt+ttl")

	st, err := f.manager.Status(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Leased, "status agrees with eligibility at the boundary")

	f.clock.Advance(time.Nanosecond)
	got, err := f.manager.AcquireNext(ctx, "S1", "bob")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestRenew(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add(t, "S1", 1)

	_, err := f.manager.AcquireNext(ctx, "S1", "alice")
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	require.NoError(t, f.manager.Renew(ctx, a.ID, "alice"))

	f.clock.Advance(4 * time.Minute)
	_, err = f.manager.AcquireNext(ctx, "S1", "bob")
	assert.ErrorIs(t, err, lease.ErrNoEligibleTask, "renewal must push expiry out")

	f.clock.Advance(time.Minute + time.Second)
	got, err := f.manager.AcquireNext(ctx, "S1", "bob")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	tests := []struct {
		name     string
		taskID   string
		identity string
		want     error
	}{
		{"other holder", a.ID, "alice", lease.ErrLeaseNotOwned},
		{"missing task", "nope", "bob", lease.ErrLeaseNotOwned},
		{"empty task id", "", "bob", lease.ErrMissingTaskID},
		{"empty identity", a.ID, "", lease.ErrMissingIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.manager.Renew(ctx, tt.taskID, tt.identity), tt.want)
		})
	}

	unleased := f.add(t, "S1", 9)
	assert.ErrorIs(t, f.manager.Renew(ctx, unleased.ID, "bob"), lease.ErrLeaseNotOwned)
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add(t, "S1", 1)

	_, err := f.manager.AcquireNext(ctx, "S1", "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, f.manager.Release(ctx, a.ID, "bob"), lease.ErrLeaseOwnedByOther)

	f.clock.Advance(ttl + time.Second)
	assert.ErrorIs(t, f.manager.Release(ctx, a.ID, "bob"), lease.ErrLeaseOwnedByOther,
		"an expired lease is still not bob's to release")

	require.NoError(t, f.manager.Release(ctx, a.ID, "alice"))
	stored, err := f.pool.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Lease)

	assert.NoError(t, f.manager.Release(ctx, a.ID, "bob"), "unleased task releases as a no-op")
	assert.NoError(t, f.manager.Release(ctx, "missing", "bob"), "missing task releases as a no-op")

	got, err := f.manager.AcquireNext(ctx, "S1", "bob")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
}

func TestStatusAndGroups(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.add(t, "S1", 1)
	f.add(t, "S1", 2)
	f.add(t, "S2", 1)

	_, err := f.manager.AcquireNext(ctx, "S1", "alice")
	require.NoError(t, err)
	start := f.clock.Now()
	f.clock.Advance(time.Minute)
	_, err = f.manager.AcquireNext(ctx, "S1", "bob")
	require.NoError(t, err)

	st, err := f.manager.Status(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 2, st.Leased)
	require.NotNil(t, st.NextExpiry)
	assert.Equal(t, a.ID, st.NextExpiry.TaskID)
	assert.True(t, st.NextExpiry.ExpiresAt.Equal(start.Add(ttl)))

	f.clock.Advance(ttl - 30*time.Second)
	st, err = f.manager.Status(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.Leased, "expired lease is not counted")

	groups, err := f.manager.ListGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"S1", "S2"}, groups)
}

func TestStoreFailuresAreWrapped(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	pool := &storetest.MockTaskPool{}
	pool.On("AcquireNext", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)
	pool.On("Release", mock.Anything, mock.Anything).Return(store.ErrTaskNotFound)
	pool.On("Exists", mock.Anything, "t1").Return(false, boom)
	pool.On("DistinctGroups", mock.Anything).Return(nil, boom)

	m := lease.NewLeaseManager(pool, ttl, nil)

	_, err := m.AcquireNext(ctx, "", "alice")
	var svcErr *lease.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "acquire_next", svcErr.Operation)
	assert.ErrorIs(t, err, boom)

	err = m.Release(ctx, "t1", "alice")
	assert.ErrorIs(t, err, boom)

	_, err = m.ListGroups(ctx)
	assert.ErrorIs(t, err, boom)

	pool.AssertExpectations(t)
}

func TestNewLeaseManagerValidatesArgs(t *testing.T) {
	assert.Panics(t, func() { lease.NewLeaseManager(nil, ttl, nil) })
	assert.Panics(t, func() { lease.NewLeaseManager(memory.NewTaskPool(nil), 0, nil) })
	assert.Equal(t, ttl, lease.NewLeaseManager(memory.NewTaskPool(nil), ttl, nil).TTL())
}
