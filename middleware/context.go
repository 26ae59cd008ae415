package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/securestarter/services/token"
)

// Context key type to avoid collisions
type contextKey string

// identityKey is the context key for the verified session claims
const identityKey contextKey = "identity"

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithIdentity attaches verified session claims to the context
func WithIdentity(ctx context.Context, claims *token.SessionClaims) context.Context {
	return context.WithValue(ctx, identityKey, claims)
}

// IdentityFromContext returns the session claims attached by the gatekeeper.
// ok is false for unauthenticated requests.
func IdentityFromContext(ctx context.Context) (*token.SessionClaims, bool) {
	claims, ok := ctx.Value(identityKey).(*token.SessionClaims)
	return claims, ok && claims != nil
}
