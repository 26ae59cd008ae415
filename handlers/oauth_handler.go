package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/securestarter/services"
	"github.com/upb/securestarter/services/identity"
	"github.com/upb/securestarter/utils"
	"go.uber.org/zap"
)

const (
	stateCookieName = "oauth2_state"
	stateCookiePath = "/oauth2/"
	stateTTL        = 10 * time.Minute
)

// Reconciler turns a provider assertion into a principal and session token
type Reconciler interface {
	Reconcile(ctx context.Context, a identity.Assertion) (*identity.Result, error)
}

// OAuthHandler runs the authorization code flow against external providers
type OAuthHandler struct {
	providers    map[string]identity.Provider
	reconciler   Reconciler
	frontendURL  string
	secureCookie bool
	logger       *zap.Logger
}

// NewOAuthHandler creates a new OAuthHandler. Providers are keyed by Name().
func NewOAuthHandler(
	reconciler Reconciler,
	frontendURL string,
	secureCookie bool,
	logger *zap.Logger,
	providers ...identity.Provider,
) *OAuthHandler {
	byName := make(map[string]identity.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &OAuthHandler{
		providers:    byName,
		reconciler:   reconciler,
		frontendURL:  frontendURL,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleAuthorize handles GET /oauth2/authorization/{provider}
func (h *OAuthHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.providers[chi.URLParam(r, "provider")]
	if !ok {
		_ = utils.WriteNotFound(w, r, "Unknown identity provider")
		return
	}

	state, err := newState()
	if err != nil {
		h.logger.Error("failed to generate oauth state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, r, "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     stateCookiePath,
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// HandleCallback handles GET /oauth2/callback/{provider}. Every outcome
// redirects to the frontend landing page.
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, ok := h.providers[name]
	if !ok {
		_ = utils.WriteNotFound(w, r, "Unknown identity provider")
		return
	}

	expected := ""
	if c, err := r.Cookie(stateCookieName); err == nil {
		expected = c.Value
	}
	h.clearState(w)

	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		h.logger.Warn("provider returned an error",
			zap.String("provider", name),
			zap.String("error", providerErr))
		h.fail(w, r, "Authentication was cancelled or denied")
		return
	}

	state := q.Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		h.logger.Warn("oauth state mismatch", zap.String("provider", name))
		h.fail(w, r, "Invalid authentication state")
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, r, "Missing authorization code")
		return
	}

	assertion, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("provider exchange failed",
			zap.String("provider", name),
			zap.Error(err))
		msg := "Authentication with the identity provider failed"
		if errors.Is(err, identity.ErrUnverifiedEmail) {
			msg = "Your email address is not verified with the identity provider"
		}
		h.fail(w, r, msg)
		return
	}

	res, err := h.reconciler.Reconcile(r.Context(), *assertion)
	if err != nil {
		h.logger.Error("external login failed",
			zap.String("provider", name),
			zap.Error(err))
		msg := "Authentication failed"
		if services.IsValidationError(err) || services.IsConflictError(err) {
			msg = services.GetErrorMessage(err)
		}
		h.fail(w, r, msg)
		return
	}

	http.Redirect(w, r, res.RedirectURL(h.frontendURL), http.StatusFound)
}

// HandleStatus handles GET /api/oauth2/status
func (h *OAuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteMessage(w, http.StatusOK, "OAuth2 integration active")
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, identity.ErrorRedirectURL(h.frontendURL, message), http.StatusFound)
}

func (h *OAuthHandler) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     stateCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
