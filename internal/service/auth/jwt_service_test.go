package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, secret string, lifetime time.Duration, now func() time.Time) JWTService {
	t.Helper()
	svc, err := newHMACJWTService(secret, lifetime, now)
	require.NoError(t, err)
	return svc
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokenLifetime := 60 * time.Minute
	secret := "test-secret-that-is-long-enough-for-testing"

	svc := newTestService(t, secret, tokenLifetime, func() time.Time {
		return fixedTime
	})

	token, err := svc.GenerateToken(context.Background(), "alice", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	// Compare Unix timestamps to avoid timezone issues
	assert.Equal(t, fixedTime.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, fixedTime.Add(tokenLifetime).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)

	_, err = svc.GenerateToken(context.Background(), "", "admin")
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	t.Parallel()

	fixedTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tokenLifetime := 60 * time.Minute
	secret := "test-secret-that-is-long-enough-for-testing"
	wrongSecret := "wrong-secret-that-is-long-enough-for-testing"
	at := func(ts time.Time) func() time.Time { return func() time.Time { return ts } }

	tests := []struct {
		name      string
		setupFunc func(t *testing.T) (JWTService, string)
		wantErr   error
	}{
		{
			name: "valid token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				svc := newTestService(t, secret, tokenLifetime, at(fixedTime))
				token, _ := svc.GenerateToken(context.Background(), "alice", "recorder")
				return svc, token
			},
		},
		{
			name: "expired token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				genSvc := newTestService(t, secret, tokenLifetime, at(fixedTime))
				token, _ := genSvc.GenerateToken(context.Background(), "alice", "recorder")
				return newTestService(t, secret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Hour))), token
			},
			wantErr: ErrExpiredToken,
		},
		{
			name: "within clock skew",
			setupFunc: func(t *testing.T) (JWTService, string) {
				genSvc := newTestService(t, secret, tokenLifetime, at(fixedTime))
				token, _ := genSvc.GenerateToken(context.Background(), "alice", "recorder")
				return newTestService(t, secret, tokenLifetime, at(fixedTime.Add(tokenLifetime+time.Minute))), token
			},
		},
		{
			name: "invalid signature",
			setupFunc: func(t *testing.T) (JWTService, string) {
				genSvc := newTestService(t, secret, tokenLifetime, at(fixedTime))
				token, _ := genSvc.GenerateToken(context.Background(), "alice", "recorder")
				return newTestService(t, wrongSecret, tokenLifetime, at(fixedTime)), token
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "malformed token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				return newTestService(t, secret, tokenLifetime, at(fixedTime)), "this.is.not.a.valid.jwt.token"
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "empty token",
			setupFunc: func(t *testing.T) (JWTService, string) {
				return newTestService(t, secret, tokenLifetime, at(fixedTime)), ""
			},
			wantErr: ErrMissingToken,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, token := tt.setupFunc(t)
			claims, err := svc.ValidateToken(context.Background(), token)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, claims)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "alice", claims.Subject)
			}
		})
	}
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	cfg := DefaultJWTConfig()
	cfg.JWTSecret = "short"
	_, err := NewJWTService(cfg)
	assert.Error(t, err)
}
