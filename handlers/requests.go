package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/services/account"
)

// SignupRequest is the body of POST /api/auth/signup
type SignupRequest struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,maxbytes=72"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// EmailRequest is the body of forgot-password and resend-verification
type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is the body of POST /api/auth/reset-password
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,maxbytes=72"`
}

// ChangePasswordRequest is the body of POST /api/users/change-password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,maxbytes=72"`
}

// SetPasswordRequest is the body of POST /api/users/set-password
type SetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,maxbytes=72"`
}

// UpdateProfileRequest is the body of PUT /api/users/update-profile.
// Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
}

// AuthResponse is returned by a successful password login
type AuthResponse struct {
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
	UserID      uuid.UUID   `json:"userId"`
	Email       string      `json:"email"`
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Role        models.Role `json:"role"`
	IsVerified  bool        `json:"isVerified"`
}

func newAuthResponse(res *account.LoginResult) AuthResponse {
	p := res.Principal
	return AuthResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		UserID:      p.ID,
		Email:       p.Email,
		FirstName:   models.StringValue(p.FirstName),
		LastName:    models.StringValue(p.LastName),
		Role:        p.Role,
		IsVerified:  p.Verified,
	}
}

// UserResponse is the public view of a principal
type UserResponse struct {
	ID           uuid.UUID           `json:"id"`
	Email        string              `json:"email"`
	FirstName    string              `json:"firstName"`
	LastName     string              `json:"lastName"`
	Role         models.Role         `json:"role"`
	AuthProvider models.AuthProvider `json:"authProvider"`
	IsVerified   bool                `json:"isVerified"`
	HasPassword  bool                `json:"hasPassword"`
	CreatedAt    time.Time           `json:"createdAt"`
}

func newUserResponse(p *models.Principal) UserResponse {
	return UserResponse{
		ID:           p.ID,
		Email:        p.Email,
		FirstName:    models.StringValue(p.FirstName),
		LastName:     models.StringValue(p.LastName),
		Role:         p.Role,
		AuthProvider: p.AuthProvider,
		IsVerified:   p.Verified,
		HasPassword:  p.HasPassword(),
		CreatedAt:    p.CreatedAt,
	}
}
