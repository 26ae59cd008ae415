package handlers

import (
	"net/http"

	"github.com/upb/securestarter/middleware"
	"github.com/upb/securestarter/services/account"
	"github.com/upb/securestarter/services/token"
	"github.com/upb/securestarter/utils"
	"go.uber.org/zap"
)

// UserHandler serves /api/users for the signed-in principal
type UserHandler struct {
	accounts AccountService
	logger   *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(accounts AccountService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// callerIdentity returns the caller's claims or writes the entry point 401
func callerIdentity(w http.ResponseWriter, r *http.Request) (*token.SessionClaims, bool) {
	claims, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteUnauthorized(w, r)
		return nil, false
	}
	return claims, true
}

// HandleMe handles GET /api/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	p, err := h.accounts.Me(r.Context(), claims.PrincipalID)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, newUserResponse(p))
}

// HandleUpdateProfile handles PUT /api/users/update-profile
func (h *UserHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	p, err := h.accounts.UpdateProfile(r.Context(), claims.PrincipalID, req.FirstName, req.LastName)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, newUserResponse(p))
}

// HandleChangePassword handles POST /api/users/change-password
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), claims.PrincipalID, req.CurrentPassword, req.NewPassword); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, http.StatusOK, account.MsgPasswordChanged)
}

// HandleSetPassword handles POST /api/users/set-password
func (h *UserHandler) HandleSetPassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := callerIdentity(w, r)
	if !ok {
		return
	}

	var req SetPasswordRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.accounts.SetPassword(r.Context(), claims.PrincipalID, req.Password); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, http.StatusOK, account.MsgPasswordSet)
}
