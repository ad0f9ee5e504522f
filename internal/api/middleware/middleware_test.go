package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qcsys/recordq/internal/api/middleware"
	"github.com/qcsys/recordq/internal/api/shared"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/service/auth"
)

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		authHeader       string
		validateErr      error
		claims           *auth.Claims
		expectedStatus   int
		expectedIdentity string
	}{
		{
			name:             "valid token",
			authHeader:       "Bearer valid-token",
			claims:           &auth.Claims{Subject: "alice"},
			expectedStatus:   http.StatusOK,
			expectedIdentity: "alice",
		},
		{
			name:             "lowercase scheme",
			authHeader:       "bearer valid-token",
			claims:           &auth.Claims{Subject: "alice"},
			expectedStatus:   http.StatusOK,
			expectedIdentity: "alice",
		},
		{
			name:           "missing auth header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid auth format",
			authHeader:     "InvalidFormat",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			authHeader:     "Bearer expired-token",
			validateErr:    auth.ErrExpiredToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid token",
			authHeader:     "Bearer invalid-token",
			validateErr:    auth.ErrInvalidToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unexpected validation failure",
			authHeader:     "Bearer some-token",
			validateErr:    errors.New("keystore unavailable"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			jwtSvc := &auth.MockJWTService{
				ValidateTokenFunc: func(ctx context.Context, token string) (*auth.Claims, error) {
					return tt.claims, tt.validateErr
				},
			}
			mw := middleware.NewAuthMiddleware(jwtSvc)

			var gotIdentity string
			handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotIdentity, _ = middleware.GetIdentity(r)
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/record/next", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedIdentity, gotIdentity)
		})
	}
}

func TestAuthenticateWithRealToken(t *testing.T) {
	mw := middleware.NewAuthMiddleware(auth.RequireTestJWTService(t))

	var gotIdentity string
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = middleware.GetIdentity(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", auth.GenerateAuthHeaderForTestingT(t, "bob"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "bob", gotIdentity)
}

func TestTrace(t *testing.T) {
	log, buf := logger.NewTestLogger()

	var traceID string
	handler := middleware.NewTraceMiddleware(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
		logger.FromContext(r.Context()).Info("inside handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Len(t, traceID, 32)
	entries := buf.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, traceID, e["trace_id"])
	}
}
