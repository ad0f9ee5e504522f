package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/qcsys/recordq/internal/api/shared"
	"github.com/qcsys/recordq/internal/domain"
	"github.com/qcsys/recordq/internal/service/auth"
	"github.com/qcsys/recordq/internal/service/lease"
	"github.com/qcsys/recordq/internal/service/queue"
	"github.com/qcsys/recordq/internal/store"
)

// MapErrorToStatusCode maps service errors to HTTP status codes without
// exposing internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Checked first: the wrapped archive failure must not decide the status.
	case errors.Is(err, queue.ErrInconsistent):
		return http.StatusInternalServerError

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, lease.ErrLeaseNotOwned),
		errors.Is(err, lease.ErrLeaseOwnedByOther),
		errors.Is(err, queue.ErrNotLeaseHolder):
		return http.StatusForbidden

	case errors.Is(err, lease.ErrNoEligibleTask),
		errors.Is(err, queue.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrUsernameExists),
		errors.Is(err, store.ErrTaskExists):
		return http.StatusConflict

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
func GetSafeErrorMessage(err error) string {
	var vErr *domain.ValidationError
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, queue.ErrInconsistent):
		return "Task was removed but could not be archived"
	case errors.Is(err, queue.ErrNoCurrentGroup):
		return "Current session is not configured"
	case errors.As(err, &vErr) && vErr.Field != "":
		return "Invalid " + vErr.Field + ": " + vErr.Message
	case errors.Is(err, domain.ErrValidation):
		return "Invalid request"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid username or password"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return "Invalid token"
	case errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"
	case errors.Is(err, lease.ErrNoEligibleTask):
		return "No eligible task"
	case errors.Is(err, lease.ErrLeaseNotOwned):
		return "Lease not owned by caller"
	case errors.Is(err, lease.ErrLeaseOwnedByOther):
		return "Task is leased by another user"
	case errors.Is(err, queue.ErrNotLeaseHolder):
		return "Only the lease holder can submit this task"
	case errors.Is(err, queue.ErrTaskNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Task not found"
	case errors.Is(err, store.ErrUsernameExists):
		return "Username already exists"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the mapped status and safe message for err.
// fallback replaces the generic 500 message when non-empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" && !errors.Is(err, queue.ErrInconsistent) {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError turns validator output into a short message
// naming the first offending field.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "Validation error"
	}
	fe := fieldErrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
