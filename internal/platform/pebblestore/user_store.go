package pebblestore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/store"
)

// userRecord is the stored form of a user; domain.User hides its hash from JSON.
type userRecord struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Role           string    `json:"role"`
	HashedPassword string    `json:"hashed_password"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserStore implements store.UserStore on Pebble.
type UserStore struct {
	db     *DB
	mu     sync.Mutex
	logger *slog.Logger
}

var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a user directory over db.
func NewUserStore(db *DB, log *slog.Logger) *UserStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &UserStore{
		db:     db,
		logger: log.With(slog.String("component", "pebble_user_store")),
	}
}

// Create implements store.UserStore.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	if user.HashedPassword == "" {
		return store.NewStoreError("user", "create", "password must be hashed", domain.ErrEmptyHashedPassword)
	}
	if err := user.Validate(); err != nil {
		return store.NewStoreError("user", "create", "invalid user", err)
	}
	raw, err := json.Marshal(userRecord{
		ID:             user.ID,
		Username:       user.Username,
		Role:           user.Role,
		HashedPassword: user.HashedPassword,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	})
	if err != nil {
		return store.NewStoreError("user", "create", "encode user", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Get(userKey(user.Username)); err == nil {
		return store.ErrUsernameExists
	} else if !errors.Is(err, pebble.ErrNotFound) {
		return store.NewStoreError("user", "create", "pebble read", err)
	}

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.Set(userKey(user.Username), raw, nil); err != nil {
		return store.NewStoreError("user", "create", "pebble batch", err)
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		return store.NewStoreError("user", "create", "pebble commit", err)
	}

	s.logger.Info("user created", slog.String("username", user.Username))
	return nil
}

// GetByUsername implements store.UserStore.
func (s *UserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	raw, err := s.db.Get(userKey(username))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrUserNotFound
		}
		return nil, store.NewStoreError("user", "get", "pebble read", err)
	}

	var rec userRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, store.NewStoreError("user", "get", "decode user", err)
	}
	return &domain.User{
		ID:             rec.ID,
		Username:       rec.Username,
		Role:           rec.Role,
		HashedPassword: rec.HashedPassword,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}
