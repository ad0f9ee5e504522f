package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/store"
)

// PostgresUserStore implements the store.UserStore interface
// using a PostgreSQL database as the storage backend.
type PostgresUserStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresUserStore creates a new PostgreSQL implementation of the UserStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresUserStore(db store.DBTX, logger *slog.Logger) *PostgresUserStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserStore{
		db:     db,
		logger: logger.With(slog.String("component", "user_store")),
	}
}

// Ensure PostgresUserStore implements store.UserStore interface
var _ store.UserStore = (*PostgresUserStore)(nil)

// Create implements store.UserStore.Create
func (s *PostgresUserStore) Create(ctx context.Context, user *domain.User) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if user.HashedPassword == "" {
		return store.NewStoreError("user", "create", "password must be hashed", domain.ErrEmptyHashedPassword)
	}
	if err := user.Validate(); err != nil {
		log.Warn("user validation failed during create",
			slog.String("error", err.Error()),
			slog.String("username", user.Username))
		return store.NewStoreError("user", "create", "invalid user", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, hashed_password, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.Username, user.HashedPassword, user.Role, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		log.Error("failed to create user",
			slog.String("error", err.Error()),
			slog.String("username", user.Username))
		return MapUniqueViolation(err, store.ErrUsernameExists)
	}

	log.Info("user created",
		slog.String("user_id", user.ID.String()),
		slog.String("username", user.Username))
	return nil
}

// GetByUsername implements store.UserStore.GetByUsername
func (s *PostgresUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, hashed_password, role, created_at, updated_at
		FROM users
		WHERE username = $1
	`, username).Scan(
		&user.ID,
		&user.Username,
		&user.HashedPassword,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("user not found", slog.String("username", username))
			return nil, store.ErrUserNotFound
		}
		log.Error("failed to get user",
			slog.String("error", err.Error()),
			slog.String("username", username))
		return nil, MapError(err)
	}
	return &user, nil
}
