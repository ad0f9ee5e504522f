package api

import (
	"net/http"

	"github.com/qcsys/recordq/internal/api/shared"
	"github.com/qcsys/recordq/internal/service/auth"
)

// AuthHandler handles authentication-related API requests.
type AuthHandler struct {
	login auth.LoginService
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(login auth.LoginService) *AuthHandler {
	return &AuthHandler{login: login}
}

// Login handles POST /api/login. Credentials arrive as form fields or JSON.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if shared.IsFormRequest(r) {
		if err := r.ParseForm(); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		if err := shared.ValidateRequest(req); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
			return
		}
	} else if !decodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.login.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to authenticate user")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, res)
}
