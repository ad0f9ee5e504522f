package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/store"
)

// UserStore holds users keyed by username.
type UserStore struct {
	mu     sync.RWMutex
	users  map[string]domain.User
	logger *slog.Logger
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates an empty user directory.
func NewUserStore(log *slog.Logger) *UserStore {
	if log == nil {
		log = slog.Default()
	}
	return &UserStore{
		users:  make(map[string]domain.User),
		logger: log.With(slog.String("component", "memory_user_store")),
	}
}

// Create implements store.UserStore.
func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	if user.HashedPassword == "" {
		return store.NewStoreError("user", "create", "password must be hashed", domain.ErrEmptyHashedPassword)
	}
	if err := user.Validate(); err != nil {
		return store.NewStoreError("user", "create", "invalid user", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return store.ErrUsernameExists
	}
	u := *user
	u.Password = ""
	s.users[user.Username] = u
	return nil
}

// GetByUsername implements store.UserStore.
func (s *UserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return &u, nil
}
