// Package account implements the credential flows around the authentication
// core: signup, password login, email verification, password reset and
// password management for the signed-in principal.
package account

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/securestarter/internal/auth"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/repositories"
	"github.com/upb/securestarter/services"
	"github.com/upb/securestarter/services/mail"
	"go.uber.org/zap"
)

// TokenLedger is the subset of the ephemeral token ledger the account flows use
type TokenLedger interface {
	IssueVerification(ctx context.Context, principalID uuid.UUID) (string, error)
	IssuePasswordReset(ctx context.Context, principalID uuid.UUID) (string, error)
	ConsumeVerification(ctx context.Context, value string) (uuid.UUID, error)
	ConsumePasswordReset(ctx context.Context, value, newPassword string) error
	ValidateTokenIsLive(ctx context.Context, value string, kind models.TokenKind) error
}

// SessionIssuer signs session tokens
type SessionIssuer interface {
	Issue(p *models.Principal) (string, error)
}

// SignupInput is a new local account
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginResult is a successful password login
type LoginResult struct {
	AccessToken string
	TokenType   string
	Principal   *models.Principal
}

// Service implements the account flows
type Service struct {
	principals repositories.PrincipalRepository
	txManager  repositories.TransactionManager
	ledger     TokenLedger
	issuer     SessionIssuer
	hasher     auth.PasswordHasher
	mailer     mail.Sender
	links      mail.Links
	logger     *zap.Logger
}

// NewService creates an account service
func NewService(
	repos *repositories.Repositories,
	txManager repositories.TransactionManager,
	ledger TokenLedger,
	issuer SessionIssuer,
	hasher auth.PasswordHasher,
	mailer mail.Sender,
	links mail.Links,
	logger *zap.Logger,
) *Service {
	return &Service{
		principals: repos.Principals,
		txManager:  txManager,
		ledger:     ledger,
		issuer:     issuer,
		hasher:     hasher,
		mailer:     mailer,
		links:      links,
		logger:     logger,
	}
}

// Signup creates an unverified local principal and sends a verification link.
// The principal and its first token are stored in one transaction.
func (s *Service) Signup(ctx context.Context, in SignupInput) error {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return services.PasswordHashError(err)
	}

	p := models.NewLocalPrincipal(in.Email, hash, in.FirstName, in.LastName)

	token, err := services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context) (string, error) {
		if err := s.principals.Create(ctx, p); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return "", ErrEmailTaken
			}
			return "", services.WrapInternal("failed to create principal", err)
		}
		return s.ledger.IssueVerification(ctx, p.ID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("principal registered", zap.String("principal_id", p.ID.String()))
	s.send(ctx, s.links.VerificationMessage(p.Email, token))
	return nil
}

// Login checks a password and issues a session token. External-only and
// unverified accounts are refused.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	p, err := s.principals.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, services.WrapInternal("failed to load principal", err)
	}

	if p.NeedsPassword() {
		return nil, ErrExternalAccount
	}
	if !auth.Matches(s.hasher, password, p.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !models.IsEnabled(p) {
		return nil, ErrNotVerified
	}

	signed, err := s.issuer.Issue(p)
	if err != nil {
		return nil, services.WrapInternal("failed to issue session token", err)
	}

	s.logger.Info("principal logged in", zap.String("principal_id", p.ID.String()))
	return &LoginResult{AccessToken: signed, TokenType: "Bearer", Principal: p}, nil
}

// VerifyEmail consumes a verification token and sends the welcome email
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	id, err := s.ledger.ConsumeVerification(ctx, token)
	if err != nil {
		return err
	}

	p, err := s.get(ctx, id)
	if err != nil {
		// verification already committed
		s.logger.Error("failed to load verified principal for welcome mail",
			zap.String("principal_id", id.String()),
			zap.Error(err))
		return nil
	}
	s.send(ctx, s.links.WelcomeMessage(p.Email))
	return nil
}

// ForgotPassword sends a reset link when email belongs to an account with a
// password. Unknown and external-only emails are skipped silently so the
// response never reveals whether an account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	p, err := s.lookupForMail(ctx, email)
	if err != nil || p == nil {
		return err
	}
	if p.NeedsPassword() {
		s.logger.Info("password reset skipped for external-only principal",
			zap.String("principal_id", p.ID.String()))
		return nil
	}

	token, err := s.ledger.IssuePasswordReset(ctx, p.ID)
	if err != nil {
		return err
	}
	s.send(ctx, s.links.PasswordResetMessage(p.Email, token))
	return nil
}

// ResendVerification issues a fresh verification link for an unverified
// account. Like ForgotPassword it never reveals whether the account exists.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	p, err := s.lookupForMail(ctx, email)
	if err != nil || p == nil {
		return err
	}
	if p.Verified {
		s.logger.Info("verification resend skipped for verified principal",
			zap.String("principal_id", p.ID.String()))
		return nil
	}

	token, err := s.ledger.IssueVerification(ctx, p.ID)
	if err != nil {
		return err
	}
	s.send(ctx, s.links.VerificationMessage(p.Email, token))
	return nil
}

// ResetPassword consumes a reset token and sets the new password
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.ledger.ConsumePasswordReset(ctx, token, newPassword)
}

// ValidateResetToken reports whether a reset token can still be used
func (s *Service) ValidateResetToken(ctx context.Context, token string) error {
	return s.ledger.ValidateTokenIsLive(ctx, token, models.TokenKindPasswordReset)
}

// Me returns the principal behind a session
func (s *Service) Me(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	return s.get(ctx, id)
}

// UpdateProfile replaces the names that are provided and keeps the others
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName *string) (*models.Principal, error) {
	return services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context) (*models.Principal, error) {
		p, err := s.get(ctx, id)
		if err != nil {
			return nil, err
		}

		if firstName != nil {
			p.FirstName = trimmed(*firstName)
		}
		if lastName != nil {
			p.LastName = trimmed(*lastName)
		}
		if err := s.principals.UpdateNames(ctx, id, p.FirstName, p.LastName); err != nil {
			return nil, services.WrapInternal("failed to update profile", err)
		}

		s.logger.Info("profile updated", zap.String("principal_id", id.String()))
		return p, nil
	})
}

// ChangePassword replaces the password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	p, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	if !auth.Matches(s.hasher, currentPassword, p.PasswordHash) {
		return ErrPasswordMismatch
	}
	if currentPassword == newPassword {
		return ErrSamePassword
	}

	return s.storePassword(ctx, id, newPassword, "password changed")
}

// SetPassword lets an external-only principal add a password so it can also
// use password login
func (s *Service) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	p, err := s.get(ctx, id)
	if err != nil {
		return err
	}

	if p.AuthProvider != models.AuthProviderExternal {
		return ErrNotExternal
	}
	if p.HasPassword() {
		return ErrPasswordAlreadySet
	}

	return s.storePassword(ctx, id, password, "password set for external principal")
}

func (s *Service) storePassword(ctx context.Context, id uuid.UUID, password, logMsg string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return services.PasswordHashError(err)
	}
	if err := s.principals.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrPrincipalNotFound
		}
		return services.WrapInternal("failed to update password", err)
	}
	s.logger.Info(logMsg, zap.String("principal_id", id.String()))
	return nil
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	p, err := s.principals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrPrincipalNotFound
		}
		return nil, services.WrapInternal("failed to load principal", err)
	}
	return p, nil
}

// lookupForMail returns nil, nil for unknown emails
func (s *Service) lookupForMail(ctx context.Context, email string) (*models.Principal, error) {
	p, err := s.principals.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Info("mail request for unknown email skipped")
			return nil, nil
		}
		return nil, services.WrapInternal("failed to load principal", err)
	}
	return p, nil
}

// send delivers msg and logs failures. The flow that triggered it has already
// committed, so delivery problems are not reported to the caller.
func (s *Service) send(ctx context.Context, msg mail.Message) {
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send mail",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

func trimmed(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
