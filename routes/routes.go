package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/securestarter/app"
	"github.com/upb/securestarter/internal/observability"
	"github.com/upb/securestarter/middleware"
	"github.com/upb/securestarter/utils"
)

// SetupRoutes configures all application routes and middleware.
// Access control is decided once by the gatekeeper from the request path,
// so route groups carry no per-group auth middleware.
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Auth.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(deps.Gatekeeper.Authenticate)

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	if deps.Registry != nil {
		r.Handle("/metrics", observability.Handler(deps.Registry))
	}

	// Credential flows
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", deps.AuthHandler.HandleSignup)
		r.Post("/login", deps.AuthHandler.HandleLogin)
		r.Get("/verify", deps.AuthHandler.HandleVerify)
		r.Post("/forgot-password", deps.AuthHandler.HandleForgotPassword)
		r.Post("/reset-password", deps.AuthHandler.HandleResetPassword)
		r.Get("/validate-reset-token", deps.AuthHandler.HandleValidateResetToken)
		r.Post("/resend-verification", deps.AuthHandler.HandleResendVerification)
		r.Get("/health", deps.AuthHandler.HandleHealth)
	})

	// External identity provider login
	r.Get("/oauth2/authorization/{provider}", deps.OAuthHandler.HandleAuthorize)
	r.Get("/oauth2/callback/{provider}", deps.OAuthHandler.HandleCallback)
	r.Get("/api/oauth2/status", deps.OAuthHandler.HandleStatus)

	// Authenticated principal
	r.Route("/api/users", func(r chi.Router) {
		r.Get("/me", deps.UserHandler.HandleMe)
		r.Put("/update-profile", deps.UserHandler.HandleUpdateProfile)
		r.Post("/change-password", deps.UserHandler.HandleChangePassword)
		r.Post("/set-password", deps.UserHandler.HandleSetPassword)
	})

	// Administration
	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/principals/{id}", deps.AdminHandler.HandleGetPrincipal)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, r, "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return r
}
