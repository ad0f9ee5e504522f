package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/store"
)

// MockTaskPool is a testify mock of store.TaskPool.
type MockTaskPool struct {
	mock.Mock
}

var _ store.TaskPool = (*MockTaskPool)(nil)

func (m *MockTaskPool) Insert(ctx context.Context, task *domain.Task) error {
	return m.Called(ctx, task).Error(0)
}

func (m *MockTaskPool) Get(ctx context.Context, id string) (*domain.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskPool) Exists(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockTaskPool) AcquireNext(ctx context.Context, match store.Match, lease domain.Lease) (*domain.Task, error) {
	args := m.Called(ctx, match, lease)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskPool) Renew(ctx context.Context, id, holder string, now time.Time) error {
	return m.Called(ctx, id, holder, now).Error(0)
}

func (m *MockTaskPool) Release(ctx context.Context, match store.Match) error {
	return m.Called(ctx, match).Error(0)
}

func (m *MockTaskPool) Requeue(ctx context.Context, match store.Match, newID string, deferredAt time.Time) (*domain.Task, error) {
	args := m.Called(ctx, match, newID, deferredAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskPool) Remove(ctx context.Context, match store.Match) (*domain.Task, error) {
	args := m.Called(ctx, match)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskPool) UpdatePayloadField(ctx context.Context, id, field string, value any) error {
	return m.Called(ctx, id, field, value).Error(0)
}

func (m *MockTaskPool) DistinctGroups(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTaskPool) Stats(ctx context.Context, groupKey string, activeSince time.Time) (store.PoolStats, error) {
	args := m.Called(ctx, groupKey, activeSince)
	return args.Get(0).(store.PoolStats), args.Error(1)
}

// MockArchiveStore is a testify mock of store.ArchiveStore.
type MockArchiveStore struct {
	mock.Mock
}

var _ store.ArchiveStore = (*MockArchiveStore)(nil)

func (m *MockArchiveStore) Insert(ctx context.Context, record *domain.ArchivedRecord) error {
	return m.Called(ctx, record).Error(0)
}

// MockUserStore is a testify mock of store.UserStore.
type MockUserStore struct {
	mock.Mock
}

var _ store.UserStore = (*MockUserStore)(nil)

func (m *MockUserStore) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}
