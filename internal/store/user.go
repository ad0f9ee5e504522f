package store

import (
	"context"

	"github.com/qcsys/recordq/internal/domain"
)

// UserStore defines the interface for user data persistence.
type UserStore interface {
	// Create saves a new user. The caller must have hashed the password.
	// Returns ErrUsernameExists if the username is already taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByUsername retrieves a user by username.
	// Returns ErrUserNotFound if the user does not exist.
	// The returned user never carries a plaintext password.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}
