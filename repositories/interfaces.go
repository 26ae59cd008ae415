package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a write violates a unique constraint
var ErrConflict = errors.New("unique constraint violated")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// PrincipalRepository handles principal data operations
type PrincipalRepository interface {
	// Create inserts a new principal. Returns ErrConflict when the email is taken.
	Create(ctx context.Context, principal *models.Principal) error

	// GetByID retrieves a principal by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)

	// GetByEmail retrieves a principal by normalized email
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)

	// GetByExternalID retrieves a principal bound to an external identity
	GetByExternalID(ctx context.Context, externalID string) (*models.Principal, error)

	// InsertExternalOrGet inserts the candidate unless a principal with the same
	// email exists, in which case that row is returned locked for update.
	// created reports which branch was taken.
	InsertExternalOrGet(ctx context.Context, candidate *models.Principal) (principal *models.Principal, created bool, err error)

	// BindExternalID links an external identity and marks the principal verified
	BindExternalID(ctx context.Context, id uuid.UUID, externalID string) error

	// UpdateNames fills first and last name
	UpdateNames(ctx context.Context, id uuid.UUID, firstName, lastName *string) error

	// UpdatePassword replaces the password hash
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error

	// MarkVerified sets verified=true
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

// EphemeralTokenRepository handles one-time token data operations
type EphemeralTokenRepository interface {
	// Create inserts a new token
	Create(ctx context.Context, token *models.EphemeralToken) error

	// GetByValue retrieves a token by its value and kind
	GetByValue(ctx context.Context, value string, kind models.TokenKind) (*models.EphemeralToken, error)

	// ConsumeIfLive flips used to true only when the token is unused and
	// unexpired at now. Returns the consumed token, or ErrNotFound when no row
	// matched the condition.
	ConsumeIfLive(ctx context.Context, value string, kind models.TokenKind, now time.Time) (*models.EphemeralToken, error)

	// InvalidateOutstanding marks all live tokens of a kind for a principal as used
	InvalidateOutstanding(ctx context.Context, principalID uuid.UUID, kind models.TokenKind, now time.Time) (int64, error)

	// DeleteExpired removes tokens whose expiry is before now
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Principals      PrincipalRepository
	EphemeralTokens EphemeralTokenRepository
}
