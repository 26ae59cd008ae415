package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/upb/securestarter/internal/observability"
	"github.com/upb/securestarter/services/token"
	"github.com/upb/securestarter/utils"
	"go.uber.org/zap"
)

const (
	// UnauthorizedMessage is the only message clients see for a missing or rejected token
	UnauthorizedMessage = "Authentication required. Please provide a valid JWT token."

	// ForbiddenMessage is returned when an authenticated caller lacks the required role
	ForbiddenMessage = "Access denied"
)

// TokenValidator validates a session token and returns its claims
type TokenValidator interface {
	Validate(token string) (*token.SessionClaims, error)
}

// StepResult is the outcome of a Step: either continue with a (possibly
// enriched) context or respond immediately.
type StepResult struct {
	ctx     context.Context
	respond bool
	status  int
	message string
}

// Continue lets the request proceed with ctx
func Continue(ctx context.Context) StepResult {
	return StepResult{ctx: ctx}
}

// Respond short-circuits the chain with status and a client-safe message
func Respond(status int, message string) StepResult {
	return StepResult{respond: true, status: status, message: message}
}

// Responded reports whether the step short-circuited the request
func (r StepResult) Responded() bool {
	return r.respond
}

// Status returns the response status of a short-circuited step
func (r StepResult) Status() int {
	return r.status
}

// Step is one stage of request admission
type Step func(*http.Request) StepResult

// Chain runs steps in order. The first Respond result is written through
// the entry point and stops the chain.
func Chain(steps ...Step) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, step := range steps {
				res := step(r)
				if res.respond {
					writeRejection(w, r, res.status, res.message)
					return
				}
				if res.ctx != nil && res.ctx != r.Context() {
					r = r.WithContext(res.ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteUnauthorized is the authentication entry point. The body never
// carries token or claim details.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteUnauthorized(w, r, UnauthorizedMessage)
}

// WriteForbidden mirrors WriteUnauthorized with 403
func WriteForbidden(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteForbidden(w, r, ForbiddenMessage)
}

func writeRejection(w http.ResponseWriter, r *http.Request, status int, message string) {
	switch status {
	case http.StatusUnauthorized:
		WriteUnauthorized(w, r)
	case http.StatusForbidden:
		WriteForbidden(w, r)
	default:
		_ = utils.WriteError(w, r, status, message, nil)
	}
}

// GatekeeperOption customizes a Gatekeeper
type GatekeeperOption func(*Gatekeeper)

// WithPolicy replaces DefaultPolicy
func WithPolicy(p Policy) GatekeeperOption {
	return func(g *Gatekeeper) {
		g.policy = p
	}
}

// WithMetrics counts rejected tokens by kind
func WithMetrics(m observability.Metrics) GatekeeperOption {
	return func(g *Gatekeeper) {
		g.metrics = observability.OrNop(m)
	}
}

// Gatekeeper authenticates bearer tokens and enforces the route policy
type Gatekeeper struct {
	validator TokenValidator
	policy    Policy
	logger    *zap.Logger
	metrics   observability.Metrics
}

// NewGatekeeper creates a Gatekeeper using DefaultPolicy unless overridden
func NewGatekeeper(validator TokenValidator, logger *zap.Logger, opts ...GatekeeperOption) *Gatekeeper {
	g := &Gatekeeper{
		validator: validator,
		policy:    DefaultPolicy(),
		logger:    logger,
		metrics:   observability.Nop{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate is the HTTP middleware: it resolves the caller's identity
// and then applies the route policy
func (g *Gatekeeper) Authenticate(next http.Handler) http.Handler {
	return Chain(g.AuthenticateStep, g.AuthorizeStep)(next)
}

// AuthenticateStep validates the bearer token, if any. A valid token
// attaches its claims to the context; an invalid one is logged and the
// request continues unauthenticated.
func (g *Gatekeeper) AuthenticateStep(r *http.Request) StepResult {
	ctx := r.Context()

	raw := extractBearerToken(r)
	if raw == "" {
		return Continue(ctx)
	}

	claims, err := g.validator.Validate(raw)
	if err != nil {
		reason := "invalid"
		var authErr *token.AuthError
		if errors.As(err, &authErr) {
			reason = string(authErr.Kind)
		}
		g.metrics.RecordTokenRejected(reason)
		g.logger.Warn("session token rejected",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("path", r.URL.Path),
			zap.String("reason", reason),
			zap.Error(err))
		return Continue(ctx)
	}

	g.logger.Debug("authentication successful",
		zap.String("request_id", GetRequestIDFromContext(ctx)),
		zap.String("principal_id", claims.PrincipalID.String()))

	return Continue(WithIdentity(ctx, claims))
}

// AuthorizeStep applies the route policy to the identity resolved by
// AuthenticateStep
func (g *Gatekeeper) AuthorizeStep(r *http.Request) StepResult {
	ctx := r.Context()
	access := g.policy.AccessFor(r.URL.Path)
	if access == AccessPublic {
		return Continue(ctx)
	}

	claims, ok := IdentityFromContext(ctx)
	if !ok {
		return Respond(http.StatusUnauthorized, UnauthorizedMessage)
	}

	if access == AccessAdmin && !claims.IsAdmin() {
		g.logger.Warn("insufficient permissions",
			zap.String("request_id", GetRequestIDFromContext(ctx)),
			zap.String("principal_id", claims.PrincipalID.String()),
			zap.String("role", string(claims.Role)),
			zap.String("path", r.URL.Path))
		return Respond(http.StatusForbidden, ForbiddenMessage)
	}

	return Continue(ctx)
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
