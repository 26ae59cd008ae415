// Package identity reconciles logins from an external identity provider with
// local principals and hands back a session token.
package identity

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/upb/securestarter/internal/observability"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/repositories"
	"github.com/upb/securestarter/services"
	"go.uber.org/zap"
)

// Reconciliation outcomes, also used as metric labels
const (
	OutcomeCreated  = "created"
	OutcomeLinked   = "linked"
	OutcomeExisting = "existing"
	OutcomeFailed   = "failed"
)

// ErrInvalidAssertion is returned when the provider omitted the subject or email
var ErrInvalidAssertion = services.Validation("External login did not provide an id and email")

// Assertion is what the provider tells us about the person logging in
type Assertion struct {
	ExternalID string
	Email      string
	GivenName  string
	FamilyName string
}

// Result is the outcome of a successful reconciliation
type Result struct {
	Token         string
	Principal     *models.Principal
	Email         string
	NeedsPassword bool
	IsNewUser     bool
	Created       bool
	Outcome       string
}

// RedirectURL builds the frontend landing URL carrying the session token
func (r *Result) RedirectURL(frontendURL string) string {
	q := url.Values{}
	q.Set("token", r.Token)
	q.Set("email", r.Email)
	q.Set("needsPassword", strconv.FormatBool(r.NeedsPassword))
	q.Set("isNewUser", strconv.FormatBool(r.IsNewUser))
	return redirectBase(frontendURL) + "?" + q.Encode()
}

// ErrorRedirectURL builds the frontend landing URL for a failed login
func ErrorRedirectURL(frontendURL, message string) string {
	q := url.Values{}
	q.Set("error", message)
	return redirectBase(frontendURL) + "?" + q.Encode()
}

func redirectBase(frontendURL string) string {
	return strings.TrimRight(frontendURL, "/") + "/oauth2/redirect"
}

// TokenIssuer signs session tokens
type TokenIssuer interface {
	Issue(p *models.Principal) (string, error)
}

// Option customizes a Reconciler
type Option func(*Reconciler)

// WithMetrics records reconciliation outcomes
func WithMetrics(m observability.Metrics) Option {
	return func(r *Reconciler) {
		r.metrics = observability.OrNop(m)
	}
}

// Reconciler implements the create-or-link decision for external logins
type Reconciler struct {
	principals repositories.PrincipalRepository
	txManager  repositories.TransactionManager
	issuer     TokenIssuer
	logger     *zap.Logger
	metrics    observability.Metrics
}

// NewReconciler creates a Reconciler
func NewReconciler(
	repos *repositories.Repositories,
	txManager repositories.TransactionManager,
	issuer TokenIssuer,
	logger *zap.Logger,
	opts ...Option,
) *Reconciler {
	r := &Reconciler{
		principals: repos.Principals,
		txManager:  txManager,
		issuer:     issuer,
		logger:     logger,
		metrics:    observability.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type reconciled struct {
	principal *models.Principal
	outcome   string
}

// Reconcile finds or creates the principal for a, links the external id when
// needed and issues a session token. The decision runs in one transaction;
// a unique violation from a concurrent login is retried once.
func (r *Reconciler) Reconcile(ctx context.Context, a Assertion) (*Result, error) {
	a.ExternalID = strings.TrimSpace(a.ExternalID)
	a.Email = models.NormalizeEmail(a.Email)
	if a.ExternalID == "" || a.Email == "" {
		r.metrics.RecordReconciliation(OutcomeFailed)
		return nil, ErrInvalidAssertion
	}

	rec, err := r.reconcileOnce(ctx, a)
	if errors.Is(err, repositories.ErrConflict) {
		r.logger.Info("reconciliation raced with a concurrent login, retrying",
			zap.String("email", a.Email))
		rec, err = r.reconcileOnce(ctx, a)
	}
	if err != nil {
		r.metrics.RecordReconciliation(OutcomeFailed)
		if errors.Is(err, repositories.ErrConflict) {
			return nil, services.NewDomainError(services.ErrorTypeConflict, "Account is linked to a different identity", err)
		}
		return nil, services.WrapInternal("failed to reconcile external login", err)
	}

	signed, err := r.issuer.Issue(rec.principal)
	if err != nil {
		r.metrics.RecordReconciliation(OutcomeFailed)
		return nil, services.WrapInternal("failed to issue session token", err)
	}

	r.metrics.RecordReconciliation(rec.outcome)
	r.logger.Info("external login reconciled",
		zap.String("principal_id", rec.principal.ID.String()),
		zap.String("outcome", rec.outcome))

	return &Result{
		Token:         signed,
		Principal:     rec.principal,
		Email:         rec.principal.Email,
		NeedsPassword: rec.principal.NeedsPassword(),
		IsNewUser:     rec.principal.IsProfileIncomplete(),
		Created:       rec.outcome == OutcomeCreated,
		Outcome:       rec.outcome,
	}, nil
}

func (r *Reconciler) reconcileOnce(ctx context.Context, a Assertion) (*reconciled, error) {
	return services.WithTransactionResult(ctx, r.txManager, func(ctx context.Context) (*reconciled, error) {
		bound, err := r.principals.GetByExternalID(ctx, a.ExternalID)
		switch {
		case err == nil:
			return &reconciled{principal: bound, outcome: OutcomeExisting}, nil
		case !errors.Is(err, repositories.ErrNotFound):
			return nil, err
		}

		candidate := models.NewExternalPrincipal(a.Email, a.ExternalID, a.GivenName, a.FamilyName)
		p, created, err := r.principals.InsertExternalOrGet(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if created {
			return &reconciled{principal: p, outcome: OutcomeCreated}, nil
		}

		if p.ExternalID != nil && *p.ExternalID == a.ExternalID {
			return &reconciled{principal: p, outcome: OutcomeExisting}, nil
		}

		if err := r.link(ctx, p, a); err != nil {
			return nil, err
		}
		return &reconciled{principal: p, outcome: OutcomeLinked}, nil
	})
}

// link binds the external id to an existing principal, marks it verified and
// fills in names the principal is missing
func (r *Reconciler) link(ctx context.Context, p *models.Principal, a Assertion) error {
	if err := r.principals.BindExternalID(ctx, p.ID, a.ExternalID); err != nil {
		return err
	}
	externalID := a.ExternalID
	p.ExternalID = &externalID
	p.Verified = true

	first, last := p.FirstName, p.LastName
	if models.StringValue(first) == "" && strings.TrimSpace(a.GivenName) != "" {
		first = nameOf(a.GivenName)
	}
	if models.StringValue(last) == "" && strings.TrimSpace(a.FamilyName) != "" {
		last = nameOf(a.FamilyName)
	}
	if first != p.FirstName || last != p.LastName {
		if err := r.principals.UpdateNames(ctx, p.ID, first, last); err != nil {
			return err
		}
		p.FirstName, p.LastName = first, last
	}

	r.logger.Info("external identity linked to existing principal",
		zap.String("principal_id", p.ID.String()))
	return nil
}

func nameOf(s string) *string {
	s = strings.TrimSpace(s)
	return &s
}
