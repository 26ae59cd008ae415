package token

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
)

// SessionClaims is the verified identity carried by a session token.
// It is rebuilt on every Validate call and never persisted.
type SessionClaims struct {
	PrincipalID  uuid.UUID
	Email        string
	Role         models.Role
	AuthProvider models.AuthProvider
	Verified     bool
	TokenID      string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// IsAdmin reports whether the token carries the admin role
func (c *SessionClaims) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

// Kind classifies token validation failures
type Kind string

const (
	KindMalformed    Kind = "malformed"
	KindBadSignature Kind = "bad_signature"
	KindExpired      Kind = "expired"
	KindUnsupported  Kind = "unsupported"
)

// AuthError is returned by Validate. Its details are for logs only; clients
// receive a generic 401.
type AuthError struct {
	Kind Kind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session token %s: %v", e.Kind, e.Err)
	}
	return "session token " + string(e.Kind)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches another *AuthError of the same kind
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// Sentinel values for errors.Is
var (
	ErrMalformed    = &AuthError{Kind: KindMalformed}
	ErrBadSignature = &AuthError{Kind: KindBadSignature}
	ErrExpired      = &AuthError{Kind: KindExpired}
	ErrUnsupported  = &AuthError{Kind: KindUnsupported}
)
