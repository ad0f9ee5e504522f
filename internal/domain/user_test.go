package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	user, err := NewUser("  alice ", "password123", "recorder")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "recorder", user.Role)
	assert.False(t, user.CreatedAt.IsZero())
}

func TestUserValidate(t *testing.T) {
	tests := []struct {
		name string
		user User
		want error
	}{
		{"missing id", User{Username: "a", Password: "password123"}, ErrEmptyUserID},
		{"missing username", User{ID: uuid.New(), Password: "password123"}, ErrEmptyUsername},
		{"short password", User{ID: uuid.New(), Username: "a", Password: "short"}, ErrPasswordTooShort},
		{"long password", User{ID: uuid.New(), Username: "a", Password: strings.Repeat("x", 73)}, ErrPasswordTooLong},
		{"no password at all", User{ID: uuid.New(), Username: "a"}, ErrEmptyPassword},
		{"hashed only", User{ID: uuid.New(), Username: "a", HashedPassword: "$2a$10$abc"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
