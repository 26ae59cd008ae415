package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/repositories"
	"go.uber.org/zap"
)

const ephemeralTokenColumns = `id, value, principal_id, kind, expires_at, used, created_at`

// EphemeralTokenRepository implements the repositories.EphemeralTokenRepository interface
type EphemeralTokenRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEphemeralTokenRepository creates a new ephemeral token repository
func NewEphemeralTokenRepository(db *DB, logger *zap.Logger) repositories.EphemeralTokenRepository {
	return &EphemeralTokenRepository{
		db:     db,
		logger: logger,
	}
}

func scanEphemeralToken(row rowScanner) (*models.EphemeralToken, error) {
	t := &models.EphemeralToken{}
	err := row.Scan(
		&t.ID,
		&t.Value,
		&t.PrincipalID,
		&t.Kind,
		&t.ExpiresAt,
		&t.Used,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Create inserts a new token
func (r *EphemeralTokenRepository) Create(ctx context.Context, t *models.EphemeralToken) error {
	query := `
		INSERT INTO ephemeral_tokens (` + ephemeralTokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		t.ID,
		t.Value,
		t.PrincipalID,
		t.Kind,
		t.ExpiresAt,
		t.Used,
		t.CreatedAt,
	)
	if err != nil {
		return translateError("create ephemeral token", err)
	}

	r.logger.Debug("ephemeral token created",
		zap.String("principal_id", t.PrincipalID.String()),
		zap.String("kind", string(t.Kind)),
		zap.Time("expires_at", t.ExpiresAt))
	return nil
}

// GetByValue retrieves a token by value and kind
func (r *EphemeralTokenRepository) GetByValue(ctx context.Context, value string, kind models.TokenKind) (*models.EphemeralToken, error) {
	query := `SELECT ` + ephemeralTokenColumns + ` FROM ephemeral_tokens WHERE value = $1 AND kind = $2`

	t, err := scanEphemeralToken(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, value, kind))
	if err != nil {
		return nil, translateError("get ephemeral token", err)
	}
	return t, nil
}

// ConsumeIfLive performs the single conditional update that moves a token
// from unused to used. Concurrent callers race on the row; at most one gets it.
func (r *EphemeralTokenRepository) ConsumeIfLive(ctx context.Context, value string, kind models.TokenKind, now time.Time) (*models.EphemeralToken, error) {
	query := `
		UPDATE ephemeral_tokens
		SET used = TRUE
		WHERE value = $1 AND kind = $2 AND used = FALSE AND expires_at > $3
		RETURNING ` + ephemeralTokenColumns

	t, err := scanEphemeralToken(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, value, kind, now))
	if err != nil {
		return nil, translateError("consume ephemeral token", err)
	}
	return t, nil
}

// InvalidateOutstanding marks every live token of kind for the principal as used
func (r *EphemeralTokenRepository) InvalidateOutstanding(ctx context.Context, principalID uuid.UUID, kind models.TokenKind, now time.Time) (int64, error) {
	query := `
		UPDATE ephemeral_tokens
		SET used = TRUE
		WHERE principal_id = $1 AND kind = $2 AND used = FALSE AND expires_at > $3
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, principalID, kind, now)
	if err != nil {
		return 0, translateError("invalidate outstanding tokens", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// DeleteExpired removes tokens that expired before now
func (r *EphemeralTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM ephemeral_tokens WHERE expires_at < $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, translateError("delete expired tokens", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
