package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/qcsys/recordq/internal/api/shared"
	"github.com/qcsys/recordq/internal/platform/logger"
	"github.com/qcsys/recordq/internal/redact"
	"github.com/qcsys/recordq/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// Authenticate validates the bearer token and stores its subject in the
// request context as the caller's lease identity.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrTokenNotYetValid),
				errors.Is(err, auth.ErrMissingToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				logger.FromContext(r.Context()).Error("failed to validate token",
					slog.String("error", redact.Error(err)))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := shared.WithIdentity(r.Context(), claims.Subject)
		log := logger.FromContext(ctx).With(slog.String("identity", claims.Subject))
		next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, log)))
	})
}

// GetIdentity extracts the caller identity from the request context.
func GetIdentity(r *http.Request) (string, bool) {
	return shared.GetIdentity(r.Context())
}
