package api

import (
	"log/slog"
	"net/http"

	"github.com/qcsys/recordq/internal/api/shared"
	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/platform/logger"
)

// requireIdentity returns the authenticated identity or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := shared.GetIdentity(r.Context())
	if !ok {
		logger.FromContext(r.Context()).Warn("identity not found in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return "", false
	}
	return identity, true
}

// decodeAndValidate decodes the JSON body into v and validates it. On
// failure it writes a 400 and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		logger.FromContext(r.Context()).Debug("invalid request body", slog.String("error", err.Error()))
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		if _, ok := err.(*domain.ValidationError); ok {
			HandleAPIError(w, r, err, "")
			return false
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
