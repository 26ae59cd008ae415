// Package ledger manages one-time tokens for email verification and password
// reset. A token is consumed by a single conditional update, so concurrent
// consumers of the same value see exactly one success.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/securestarter/internal/auth"
	"github.com/upb/securestarter/internal/observability"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/repositories"
	"github.com/upb/securestarter/services"
	"go.uber.org/zap"
)

// valueBytes is the entropy of a token value (256 bits)
const valueBytes = 32

// Option customizes a Ledger
type Option func(*Ledger)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithMetrics records issuance and consumption outcomes
func WithMetrics(m observability.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = observability.OrNop(m)
	}
}

// Ledger issues and consumes ephemeral tokens
type Ledger struct {
	principals repositories.PrincipalRepository
	tokens     repositories.EphemeralTokenRepository
	txManager  repositories.TransactionManager
	hasher     auth.PasswordHasher
	logger     *zap.Logger
	metrics    observability.Metrics
	now        func() time.Time
}

// New creates a Ledger
func New(
	repos *repositories.Repositories,
	txManager repositories.TransactionManager,
	hasher auth.PasswordHasher,
	logger *zap.Logger,
	opts ...Option,
) *Ledger {
	l := &Ledger{
		principals: repos.Principals,
		tokens:     repos.EphemeralTokens,
		txManager:  txManager,
		hasher:     hasher,
		logger:     logger,
		metrics:    observability.Nop{},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IssueVerification creates a 24h email verification token
func (l *Ledger) IssueVerification(ctx context.Context, principalID uuid.UUID) (string, error) {
	return l.issue(ctx, principalID, models.TokenKindVerification)
}

// IssuePasswordReset creates a 1h password reset token
func (l *Ledger) IssuePasswordReset(ctx context.Context, principalID uuid.UUID) (string, error) {
	return l.issue(ctx, principalID, models.TokenKindPasswordReset)
}

// issue invalidates the principal's outstanding tokens of kind and stores a
// fresh one, in one transaction.
func (l *Ledger) issue(ctx context.Context, principalID uuid.UUID, kind models.TokenKind) (string, error) {
	value, err := generateValue()
	if err != nil {
		return "", services.WrapInternal("failed to generate token", err)
	}

	err = services.WithTransaction(ctx, l.txManager, func(ctx context.Context) error {
		if _, err := l.principals.GetByID(ctx, principalID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrPrincipalNotFound
			}
			return services.WrapInternal("failed to load principal", err)
		}

		now := l.now()
		invalidated, err := l.tokens.InvalidateOutstanding(ctx, principalID, kind, now)
		if err != nil {
			return services.WrapInternal("failed to invalidate outstanding tokens", err)
		}
		if invalidated > 0 {
			l.logger.Debug("outstanding tokens invalidated",
				zap.String("principal_id", principalID.String()),
				zap.String("kind", string(kind)),
				zap.Int64("count", invalidated))
		}

		if err := l.tokens.Create(ctx, models.NewEphemeralToken(principalID, kind, value, now)); err != nil {
			return services.WrapInternal("failed to store token", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	l.metrics.RecordLedgerIssued(string(kind))
	l.logger.Info("ephemeral token issued",
		zap.String("principal_id", principalID.String()),
		zap.String("kind", string(kind)))
	return value, nil
}

// ConsumeVerification consumes a verification token and marks its principal
// verified. Both changes commit together. It returns the verified principal.
func (l *Ledger) ConsumeVerification(ctx context.Context, value string) (uuid.UUID, error) {
	kind := models.TokenKindVerification

	principalID, err := services.WithTransactionResult(ctx, l.txManager, func(ctx context.Context) (uuid.UUID, error) {
		now := l.now()
		if _, err := l.check(ctx, value, kind, now); err != nil {
			return uuid.Nil, err
		}

		consumed, err := l.consume(ctx, value, kind, now)
		if err != nil {
			return uuid.Nil, err
		}

		if err := l.principals.MarkVerified(ctx, consumed.PrincipalID); err != nil {
			return uuid.Nil, services.WrapInternal("failed to mark principal verified", err)
		}

		l.logger.Info("principal verified",
			zap.String("principal_id", consumed.PrincipalID.String()))
		return consumed.PrincipalID, nil
	})

	l.recordConsumption(kind, err)
	if err != nil {
		return uuid.Nil, err
	}
	return principalID, nil
}

// ConsumePasswordReset consumes a reset token and replaces the principal's
// password. The token guards run first. A new password equal to the current
// one, or one that cannot be hashed, is rejected before the token is touched.
func (l *Ledger) ConsumePasswordReset(ctx context.Context, value, newPassword string) error {
	kind := models.TokenKindPasswordReset

	err := services.WithTransaction(ctx, l.txManager, func(ctx context.Context) error {
		now := l.now()
		tok, err := l.check(ctx, value, kind, now)
		if err != nil {
			return err
		}

		principal, err := l.principals.GetByID(ctx, tok.PrincipalID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return newError(KindNotFound)
			}
			return services.WrapInternal("failed to load principal", err)
		}

		if auth.Matches(l.hasher, newPassword, principal.PasswordHash) {
			return newError(KindSameSecret)
		}

		newHash, err := l.hasher.Hash(newPassword)
		if err != nil {
			return services.PasswordHashError(err)
		}

		if _, err := l.consume(ctx, value, kind, now); err != nil {
			return err
		}

		if err := l.principals.UpdatePassword(ctx, principal.ID, newHash); err != nil {
			return services.WrapInternal("failed to update password", err)
		}

		l.logger.Info("password reset completed",
			zap.String("principal_id", principal.ID.String()))
		return nil
	})

	l.recordConsumption(kind, err)
	return err
}

// ValidateTokenIsLive runs the read-only guards without consuming
func (l *Ledger) ValidateTokenIsLive(ctx context.Context, value string, kind models.TokenKind) error {
	_, err := l.check(ctx, value, kind, l.now())
	return err
}

// SweepExpired deletes tokens whose expiry is before now and returns how many
// were removed
func (l *Ledger) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	removed, err := l.tokens.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired tokens: %w", err)
	}
	l.metrics.RecordSwept(removed)
	return removed, nil
}

// check applies the guards in order: not found, expired, already used
func (l *Ledger) check(ctx context.Context, value string, kind models.TokenKind, now time.Time) (*models.EphemeralToken, error) {
	if value == "" {
		return nil, newError(KindNotFound)
	}

	tok, err := l.tokens.GetByValue(ctx, value, kind)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, newError(KindNotFound)
		}
		return nil, services.WrapInternal("failed to load token", err)
	}

	if tok.IsExpired(now) {
		return nil, newError(KindExpired)
	}
	if tok.Used {
		return nil, newError(KindAlreadyUsed)
	}
	return tok, nil
}

// consume runs the conditional update. When it matches no row another
// consumer got there first, so the token is re-read and classified.
func (l *Ledger) consume(ctx context.Context, value string, kind models.TokenKind, now time.Time) (*models.EphemeralToken, error) {
	consumed, err := l.tokens.ConsumeIfLive(ctx, value, kind, now)
	if err == nil {
		return consumed, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapInternal("failed to consume token", err)
	}

	if _, checkErr := l.check(ctx, value, kind, now); checkErr != nil {
		return nil, checkErr
	}
	return nil, newError(KindAlreadyUsed)
}

func (l *Ledger) recordConsumption(kind models.TokenKind, err error) {
	outcome := "consumed"
	if err != nil {
		var ledgerErr *LedgerError
		switch {
		case errors.As(err, &ledgerErr):
			outcome = string(ledgerErr.Kind)
		case services.IsValidationError(err):
			outcome = "rejected"
		default:
			outcome = "error"
			l.logger.Error("token consumption failed",
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
	l.metrics.RecordLedgerConsumption(string(kind), outcome)
}

func generateValue() (string, error) {
	buf := make([]byte, valueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
