package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/qcsys/recordq/internal/config"
	"github.com/qcsys/recordq/internal/platform/logger"
)

// minSecretLength is the shortest HMAC key accepted.
const minSecretLength = 32

// hmacJWTService is an implementation of JWTService using HMAC-SHA signing.
type hmacJWTService struct {
	signingKey    []byte
	tokenLifetime time.Duration
	timeFunc      func() time.Time // Injectable for testing
	clockSkew     time.Duration    // Allowed time difference for validation to handle clock drift
}

// jwtCustomClaims defines the structure of JWT claims we use
type jwtCustomClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Ensure hmacJWTService implements JWTService interface
var _ JWTService = (*hmacJWTService)(nil)

// NewJWTService creates a new JWT service using HMAC-SHA signing.
func NewJWTService(cfg config.AuthConfig) (JWTService, error) {
	return newHMACJWTService(cfg.JWTSecret, cfg.TokenLifetime(), time.Now)
}

func newHMACJWTService(secret string, lifetime time.Duration, now func() time.Time) (*hmacJWTService, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", minSecretLength)
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive")
	}
	return &hmacJWTService{
		signingKey:    []byte(secret),
		tokenLifetime: lifetime,
		timeFunc:      now,
		clockSkew:     2 * time.Minute,
	}, nil
}

func (s *hmacJWTService) TokenLifetime() time.Duration {
	return s.tokenLifetime
}

// GenerateToken creates a signed JWT access token for username.
func (s *hmacJWTService) GenerateToken(ctx context.Context, username, role string) (string, error) {
	log := logger.FromContext(ctx)
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	now := s.timeFunc()

	claims := jwtCustomClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenLifetime)),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.signingKey)
	if err != nil {
		log.Error("failed to sign JWT access token",
			slog.String("error", err.Error()),
			slog.String("username", username),
			slog.String("signing_method", jwt.SigningMethodHS256.Name))
		return "", fmt.Errorf("failed to sign access token with HMAC-SHA256: %w", err)
	}

	return signedToken, nil
}

// ValidateToken validates a JWT access token and returns the claims if valid.
func (s *hmacJWTService) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	now := s.timeFunc()
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time {
			return now
		}),
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwtCustomClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		parserOpts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: token expired", slog.String("error", err.Error()))
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: token not yet valid", slog.String("error", err.Error()))
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed",
				slog.String("error", err.Error()),
				slog.String("error_type", fmt.Sprintf("%T", err)))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*jwtCustomClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		log.Debug("token validation failed: invalid claims")
		return nil, ErrInvalidToken
	}

	out := &Claims{
		Subject: claims.Subject,
		Role:    claims.Role,
		ID:      claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
