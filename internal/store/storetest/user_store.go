package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/store"
)

// RunUserStoreTests exercises the store.UserStore contract.
func RunUserStoreTests(t *testing.T, users store.UserStore) {
	ctx := context.Background()

	user, err := domain.NewUser("alice", "password123", "recorder")
	require.NoError(t, err)
	user.HashedPassword = "$2a$10$0123456789012345678901uO2xMzgkQ8fSeCH0p1uUyP0QoM1tKWa"

	require.NoError(t, users.Create(ctx, user))

	got, err := users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "recorder", got.Role)
	assert.Equal(t, user.HashedPassword, got.HashedPassword)
	assert.Empty(t, got.Password)

	dup, err := domain.NewUser("alice", "password456", "qa")
	require.NoError(t, err)
	dup.HashedPassword = user.HashedPassword
	assert.ErrorIs(t, users.Create(ctx, dup), store.ErrUsernameExists)

	_, err = users.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}
