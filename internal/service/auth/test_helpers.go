package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/config"
)

// DefaultJWTConfig returns a standard configuration for JWT authentication suitable for testing.
func DefaultJWTConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            "test-jwt-secret-that-is-32-chars-long",
		TokenLifetimeMinutes: 60,
	}
}

// RequireTestJWTService creates a test JWT service and uses require to handle errors.
func RequireTestJWTService(t *testing.T) JWTService {
	t.Helper()
	svc, err := NewJWTService(DefaultJWTConfig())
	require.NoError(t, err, "Failed to create test JWT service")
	return svc
}

// GenerateAuthHeaderForTestingT returns a Bearer header for username signed
// with DefaultJWTConfig.
func GenerateAuthHeaderForTestingT(t *testing.T, username string) string {
	t.Helper()
	token, err := RequireTestJWTService(t).GenerateToken(context.Background(), username, "recorder")
	require.NoError(t, err, "Failed to generate auth header")
	return "Bearer " + token
}
