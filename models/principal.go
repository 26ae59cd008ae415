package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the authorization role of a principal
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// AuthProvider records how a principal first came into the system
type AuthProvider string

const (
	AuthProviderLocal    AuthProvider = "LOCAL"
	AuthProviderExternal AuthProvider = "EXTERNAL"
)

// Principal represents an authenticated account.
// Authentication fields (PasswordHash, ExternalID, Verified, Role) are only
// mutated by the identity subsystem.
type Principal struct {
	ID           uuid.UUID    `json:"id" db:"id"`
	Email        string       `json:"email" db:"email"`
	PasswordHash *string      `json:"-" db:"password_hash"` // nil for provider-only accounts
	FirstName    *string      `json:"first_name,omitempty" db:"first_name"`
	LastName     *string      `json:"last_name,omitempty" db:"last_name"`
	Role         Role         `json:"role" db:"role"`
	AuthProvider AuthProvider `json:"auth_provider" db:"auth_provider"`
	ExternalID   *string      `json:"-" db:"external_id"`
	Verified     bool         `json:"verified" db:"verified"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Principal model
func (Principal) TableName() string {
	return "principals"
}

// NewLocalPrincipal creates an unverified principal that signs in with a password
func NewLocalPrincipal(email, passwordHash, firstName, lastName string) *Principal {
	now := time.Now().UTC()
	return &Principal{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		PasswordHash: &passwordHash,
		FirstName:    optional(firstName),
		LastName:     optional(lastName),
		Role:         RoleUser,
		AuthProvider: AuthProviderLocal,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewExternalPrincipal creates a verified principal bound to an external
// identity provider. It carries no local password.
func NewExternalPrincipal(email, externalID, firstName, lastName string) *Principal {
	now := time.Now().UTC()
	return &Principal{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		FirstName:    optional(firstName),
		LastName:     optional(lastName),
		Role:         RoleUser,
		AuthProvider: AuthProviderExternal,
		ExternalID:   &externalID,
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// IsEnabled reports whether the principal may sign in.
func IsEnabled(p *Principal) bool {
	return p != nil && p.Verified
}

// IsAdmin returns true if the principal has the admin role
func (p *Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// HasPassword returns true if a local password is set
func (p *Principal) HasPassword() bool {
	return p.PasswordHash != nil && *p.PasswordHash != ""
}

// NeedsPassword is true for provider-only accounts that never set a password
func (p *Principal) NeedsPassword() bool {
	return p.AuthProvider == AuthProviderExternal && !p.HasPassword()
}

// IsProfileIncomplete is true while either name part is missing
func (p *Principal) IsProfileIncomplete() bool {
	return p.FirstName == nil || *p.FirstName == "" || p.LastName == nil || *p.LastName == ""
}

// NormalizeEmail lower-cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StringValue dereferences an optional string, returning "" for nil
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
