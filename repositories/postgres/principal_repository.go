package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/repositories"
	"go.uber.org/zap"
)

const principalColumns = `id, email, password_hash, first_name, last_name, role, auth_provider, external_id, verified, created_at, updated_at`

// PrincipalRepository implements the repositories.PrincipalRepository interface
type PrincipalRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(db *DB, logger *zap.Logger) repositories.PrincipalRepository {
	return &PrincipalRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrincipal(row rowScanner) (*models.Principal, error) {
	p := &models.Principal{}
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.PasswordHash,
		&p.FirstName,
		&p.LastName,
		&p.Role,
		&p.AuthProvider,
		&p.ExternalID,
		&p.Verified,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create creates a new principal
func (r *PrincipalRepository) Create(ctx context.Context, p *models.Principal) error {
	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.PasswordHash,
		p.FirstName,
		p.LastName,
		p.Role,
		p.AuthProvider,
		p.ExternalID,
		p.Verified,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return translateError("create principal", err)
	}

	r.logger.Debug("principal created", zap.String("id", p.ID.String()))
	return nil
}

// GetByID retrieves a principal by ID
func (r *PrincipalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`

	p, err := scanPrincipal(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, translateError("get principal by id", err)
	}
	return p, nil
}

// GetByEmail retrieves a principal by email
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1`

	p, err := scanPrincipal(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, models.NormalizeEmail(email)))
	if err != nil {
		return nil, translateError("get principal by email", err)
	}
	return p, nil
}

// GetByExternalID retrieves a principal by external identity
func (r *PrincipalRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE external_id = $1`

	p, err := scanPrincipal(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, externalID))
	if err != nil {
		return nil, translateError("get principal by external id", err)
	}
	return p, nil
}

// InsertExternalOrGet inserts candidate unless its email already exists. On
// conflict the existing row is re-read with FOR UPDATE so the caller holds the
// row lock for the rest of its transaction.
func (r *PrincipalRepository) InsertExternalOrGet(ctx context.Context, candidate *models.Principal) (*models.Principal, bool, error) {
	insert := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (email) DO NOTHING
		RETURNING ` + principalColumns

	executor := GetExecutor(ctx, r.db)
	p, err := scanPrincipal(executor.QueryRowContext(ctx, insert,
		candidate.ID,
		candidate.Email,
		candidate.PasswordHash,
		candidate.FirstName,
		candidate.LastName,
		candidate.Role,
		candidate.AuthProvider,
		candidate.ExternalID,
		candidate.Verified,
		candidate.CreatedAt,
		candidate.UpdatedAt,
	))
	if err == nil {
		r.logger.Debug("external principal created", zap.String("id", p.ID.String()))
		return p, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, translateError("insert external principal", err)
	}

	lock := `SELECT ` + principalColumns + ` FROM principals WHERE email = $1 FOR UPDATE`
	p, err = scanPrincipal(executor.QueryRowContext(ctx, lock, candidate.Email))
	if err != nil {
		return nil, false, translateError("lock principal by email", err)
	}
	return p, false, nil
}

// BindExternalID links an external identity and marks the principal verified
func (r *PrincipalRepository) BindExternalID(ctx context.Context, id uuid.UUID, externalID string) error {
	query := `
		UPDATE principals
		SET external_id = $2, verified = TRUE, updated_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, "bind external id", query, id, externalID, time.Now().UTC())
}

// UpdateNames fills first and last name
func (r *PrincipalRepository) UpdateNames(ctx context.Context, id uuid.UUID, firstName, lastName *string) error {
	query := `
		UPDATE principals
		SET first_name = $2, last_name = $3, updated_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, "update principal names", query, id, firstName, lastName, time.Now().UTC())
}

// UpdatePassword replaces the password hash
func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `
		UPDATE principals
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, "update password", query, id, passwordHash, time.Now().UTC())
}

// MarkVerified sets verified to true
func (r *PrincipalRepository) MarkVerified(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE principals
		SET verified = TRUE, updated_at = $2
		WHERE id = $1
	`
	return r.execOne(ctx, "mark principal verified", query, id, time.Now().UTC())
}

func (r *PrincipalRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		return translateError(op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, repositories.ErrNotFound)
	}
	return nil
}
