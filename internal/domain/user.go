package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for User
var (
	ErrEmptyUserID         = errors.New("user ID cannot be empty")
	ErrEmptyUsername       = errors.New("username cannot be empty")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters long")
	ErrPasswordTooLong     = errors.New("password must be at most 72 characters long")
	ErrEmptyPassword       = errors.New("password cannot be empty")
	ErrEmptyHashedPassword = errors.New("hashed password cannot be empty")
)

// User is an operator allowed to check out records. The username doubles as
// the lease identity once authenticated.
type User struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Role           string    `json:"role"`
	Password       string    `json:"-"` // Plaintext, only held until hashed
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewUser creates a new User with the given username, password and role.
// The caller is responsible for hashing the password before storing the user.
func NewUser(username, password, role string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:        uuid.New(),
		Username:  strings.TrimSpace(username),
		Role:      role,
		Password:  password,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}
	if u.Username == "" {
		return ErrEmptyUsername
	}

	if u.Password != "" {
		// bcrypt ignores bytes past 72
		switch {
		case len(u.Password) < 8:
			return ErrPasswordTooShort
		case len(u.Password) > 72:
			return ErrPasswordTooLong
		}
		return nil
	}

	if u.HashedPassword == "" {
		return ErrEmptyPassword
	}
	return nil
}
