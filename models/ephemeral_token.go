package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind distinguishes the purpose of a one-time token
type TokenKind string

const (
	TokenKindVerification  TokenKind = "VERIFICATION"
	TokenKindPasswordReset TokenKind = "PASSWORD_RESET"
)

// TTL returns the lifetime of tokens of this kind
func (k TokenKind) TTL() time.Duration {
	switch k {
	case TokenKindPasswordReset:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// EphemeralToken is a single-use, time-bounded token used for email
// verification or password reset. Used flips from false to true exactly once.
type EphemeralToken struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Value       string    `json:"-" db:"value"`
	PrincipalID uuid.UUID `json:"principal_id" db:"principal_id"`
	Kind        TokenKind `json:"kind" db:"kind"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
	Used        bool      `json:"used" db:"used"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the EphemeralToken model
func (EphemeralToken) TableName() string {
	return "ephemeral_tokens"
}

// NewEphemeralToken creates an unused token expiring now+kind.TTL()
func NewEphemeralToken(principalID uuid.UUID, kind TokenKind, value string, now time.Time) *EphemeralToken {
	return &EphemeralToken{
		ID:          uuid.New(),
		Value:       value,
		PrincipalID: principalID,
		Kind:        kind,
		ExpiresAt:   now.Add(kind.TTL()),
		Used:        false,
		CreatedAt:   now,
	}
}

// IsExpired reports whether now is at or past the expiry
func (t *EphemeralToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsLive reports whether the token can still be consumed
func (t *EphemeralToken) IsLive(now time.Time) bool {
	return !t.Used && !t.IsExpired(now)
}
