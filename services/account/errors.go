package account

import "github.com/upb/securestarter/services"

// Client-facing messages
const (
	MsgSignupSuccess        = "Registration successful! Please check your email to verify your account."
	MsgVerificationSuccess  = "Email verified successfully! You can now login."
	MsgPasswordResetSent    = "If an account exists for that email, password reset instructions have been sent."
	MsgVerificationResent   = "If an unverified account exists for that email, a new verification link has been sent."
	MsgPasswordResetSuccess = "Password has been reset successfully."
	MsgResetTokenValid      = "Token is valid. You can now reset your password."
	MsgPasswordChanged      = "Password changed successfully"
	MsgPasswordSet          = "Password set successfully. You can now login with email and password."
)

var (
	ErrEmailTaken         = services.Validation("Email already exists")
	ErrInvalidCredentials = services.Validation("Invalid email or password")
	ErrExternalAccount    = services.Validation("This account uses Google login. Please sign in with Google, " +
		"or set a password in your profile settings after logging in with Google.")
	ErrNotVerified        = services.Validation("Account is not verified. Please check your email.")
	ErrPasswordMismatch   = services.Validation("Current password is incorrect")
	ErrSamePassword       = services.Validation("New password must be different from current password")
	ErrNotExternal        = services.Validation("This feature is only for Google-authenticated users")
	ErrPasswordAlreadySet = services.Validation("Password already set. Use change password instead.")
)
