package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/services/account"
	"github.com/upb/securestarter/utils"
	"go.uber.org/zap"
)

// AccountService is the account flow surface used by the HTTP handlers
type AccountService interface {
	Signup(ctx context.Context, in account.SignupInput) error
	Login(ctx context.Context, email, password string) (*account.LoginResult, error)
	VerifyEmail(ctx context.Context, token string) error
	ForgotPassword(ctx context.Context, email string) error
	ResendVerification(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ValidateResetToken(ctx context.Context, token string) error
	Me(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName *string) (*models.Principal, error)
	ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error
	SetPassword(ctx context.Context, id uuid.UUID, password string) error
}

// AuthHandler serves the public /api/auth endpoints
type AuthHandler struct {
	accounts AccountService
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(accounts AccountService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// HandleSignup handles POST /api/auth/signup
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	h.logger.Info("signup request received", zap.String("email", models.NormalizeEmail(req.Email)))

	err := h.accounts.Signup(r.Context(), account.SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, http.StatusCreated, account.MsgSignupSuccess)
}

// HandleLogin handles POST /api/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, newAuthResponse(res))
}

// HandleVerify handles GET /api/auth/verify?token=
func (h *AuthHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	value, ok := requireQuery(w, r, "token", h.logger)
	if !ok {
		return
	}

	if err := h.accounts.VerifyEmail(r.Context(), value); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, http.StatusOK, account.MsgVerificationSuccess)
}

// HandleForgotPassword handles POST /api/auth/forgot-password. The response
// does not reveal whether the email is registered.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.accounts.ForgotPassword(r.Context(), req.Email); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, http.StatusOK, account.MsgPasswordResetSent)
}

// HandleResendVerification handles POST /api/auth/resend-verification
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.accounts.ResendVerification(r.Context(), req.Email); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, http.StatusOK, account.MsgVerificationResent)
}

// HandleResetPassword handles POST /api/auth/reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeRequest(w, r, &req, h.logger) {
		return
	}

	if err := h.accounts.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, http.StatusOK, account.MsgPasswordResetSuccess)
}

// HandleValidateResetToken handles GET /api/auth/validate-reset-token?token=
func (h *AuthHandler) HandleValidateResetToken(w http.ResponseWriter, r *http.Request) {
	value, ok := requireQuery(w, r, "token", h.logger)
	if !ok {
		return
	}

	if err := h.accounts.ValidateResetToken(r.Context(), value); err != nil {
		HandleServiceError(w, r, err, h.logger)
		return
	}

	_ = utils.WriteMessage(w, http.StatusOK, account.MsgResetTokenValid)
}

// HandleHealth handles GET /api/auth/health
func (h *AuthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, http.StatusOK, "Auth service is running")
}
