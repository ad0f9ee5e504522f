package auth

import (
	"context"
	"time"
)

// MockJWTService is a mock implementation of the JWTService interface for testing.
type MockJWTService struct {
	GenerateTokenFunc func(ctx context.Context, username, role string) (string, error)
	ValidateTokenFunc func(ctx context.Context, tokenString string) (*Claims, error)

	// Fixed fields for simple cases
	Token           string
	TokenError      error
	ValidationError error
	Claims          *Claims
	Lifetime        time.Duration
}

var _ JWTService = (*MockJWTService)(nil)

// NewMockJWTService returns a mock that accepts every token as "alice".
func NewMockJWTService() *MockJWTService {
	now := time.Now()
	return &MockJWTService{
		Token: "mock-jwt-token",
		Claims: &Claims{
			Subject:   "alice",
			Role:      "recorder",
			IssuedAt:  now,
			ExpiresAt: now.Add(time.Hour),
			ID:        "mock-token-id",
		},
		Lifetime: time.Hour,
	}
}

// GenerateToken implements the JWTService.GenerateToken method.
func (m *MockJWTService) GenerateToken(ctx context.Context, username, role string) (string, error) {
	if m.GenerateTokenFunc != nil {
		return m.GenerateTokenFunc(ctx, username, role)
	}
	return m.Token, m.TokenError
}

// ValidateToken implements the JWTService.ValidateToken method.
func (m *MockJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, tokenString)
	}
	return m.Claims, m.ValidationError
}

// TokenLifetime implements the JWTService.TokenLifetime method.
func (m *MockJWTService) TokenLifetime() time.Duration {
	return m.Lifetime
}
