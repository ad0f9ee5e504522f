package auth

import (
	"context"
	"time"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed access token whose subject is username.
	GenerateToken(ctx context.Context, username, role string) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims if the token is valid, or an error if validation fails
	// (expired, invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)

	// TokenLifetime reports how long issued tokens stay valid.
	TokenLifetime() time.Duration
}

// Claims represents the custom claims structure for the JWT tokens.
type Claims struct {
	// Subject is the username, used as the lease identity.
	Subject string `json:"sub,omitempty"`

	// Role is the operator role recorded at login.
	Role string `json:"role,omitempty"`

	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
