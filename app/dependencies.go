package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/securestarter/config"
	"github.com/upb/securestarter/handlers"
	"github.com/upb/securestarter/internal/auth"
	"github.com/upb/securestarter/internal/observability"
	"github.com/upb/securestarter/middleware"
	"github.com/upb/securestarter/repositories"
	"github.com/upb/securestarter/repositories/postgres"
	"github.com/upb/securestarter/services/account"
	"github.com/upb/securestarter/services/identity"
	"github.com/upb/securestarter/services/ledger"
	"github.com/upb/securestarter/services/mail"
	"github.com/upb/securestarter/services/token"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Metrics; Registry is nil when metrics are disabled
	Registry *prometheus.Registry
	Metrics  observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repositories *repositories.Repositories
	TxManager    repositories.TransactionManager

	// Authentication core
	Issuer     *token.Issuer
	Ledger     *ledger.Ledger
	Sweeper    *ledger.Sweeper
	Reconciler *identity.Reconciler
	Providers  []identity.Provider
	Accounts   *account.Service
	Gatekeeper *middleware.Gatekeeper

	// HTTP handlers
	AuthHandler   *handlers.AuthHandler
	UserHandler   *handlers.UserHandler
	OAuthHandler  *handlers.OAuthHandler
	AdminHandler  *handlers.AdminHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
// against PostgreSQL. A weak or missing JWT secret fails before the
// database is touched.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initIssuer(cfg); err != nil {
		return nil, err
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.Repositories = deps.RepoFactory.NewRepositories()
	deps.TxManager = deps.RepoFactory.GetTransactionManager()
	logger.Info("repositories initialized")

	deps.initServices(cfg)
	deps.HealthHandler = handlers.NewHealthHandler(deps.DB, logger)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesWithStore wires the application over an existing
// repository set, such as the in-memory store. Readiness reports the
// database as not configured.
func NewDependenciesWithStore(
	cfg *config.Config,
	logger *zap.Logger,
	repos *repositories.Repositories,
	txManager repositories.TransactionManager,
) (*Dependencies, error) {
	deps := &Dependencies{
		Config:       cfg,
		Logger:       logger,
		Repositories: repos,
		TxManager:    txManager,
	}

	if err := deps.initIssuer(cfg); err != nil {
		return nil, err
	}

	deps.initServices(cfg)
	deps.HealthHandler = handlers.NewHealthHandler(nil, logger)
	return deps, nil
}

// initMetrics creates the Prometheus registry when metrics are enabled
func (d *Dependencies) initMetrics(cfg *config.Config) {
	if !cfg.Observability.MetricsEnabled {
		d.Metrics = observability.Nop{}
		return
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Registry = reg
	d.Metrics = observability.NewCollector(reg)
}

// initIssuer builds the session token issuer
func (d *Dependencies) initIssuer(cfg *config.Config) error {
	d.initMetrics(cfg)

	issuer, err := token.NewIssuer(token.Config{
		Secret: []byte(cfg.Auth.JWTSecret),
		TTL:    cfg.Auth.JWTTTL(),
		Issuer: cfg.Auth.JWTIssuer,
	}, token.WithMetrics(d.Metrics))
	if err != nil {
		return fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	d.Issuer = issuer
	return nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	// Test the connection
	if err := d.DB.HealthCheck(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initServices wires the authentication core, account flows and handlers
func (d *Dependencies) initServices(cfg *config.Config) {
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	d.Ledger = ledger.New(d.Repositories, d.TxManager, hasher, d.Logger,
		ledger.WithMetrics(d.Metrics))
	d.Sweeper = ledger.NewSweeper(d.Ledger, cfg.Auth.SweepInterval, d.Logger)

	d.Reconciler = identity.NewReconciler(d.Repositories, d.TxManager, d.Issuer, d.Logger,
		identity.WithMetrics(d.Metrics))

	d.Accounts = account.NewService(
		d.Repositories,
		d.TxManager,
		d.Ledger,
		d.Issuer,
		hasher,
		mail.NewLogSender(d.Logger),
		mail.NewLinks(cfg.Auth.FrontendURL),
		d.Logger,
	)

	d.Gatekeeper = middleware.NewGatekeeper(d.Issuer, d.Logger, middleware.WithMetrics(d.Metrics))

	if cfg.Auth.GoogleEnabled() {
		d.Providers = append(d.Providers, identity.NewGoogleProvider(identity.GoogleConfig{
			ClientID:     cfg.Auth.GoogleClientID,
			ClientSecret: cfg.Auth.GoogleClientSecret,
			RedirectURL:  cfg.Auth.GoogleRedirectURL,
		}))
		d.Logger.Info("google login enabled")
	} else {
		d.Logger.Warn("google client not configured, external login disabled")
	}

	d.AuthHandler = handlers.NewAuthHandler(d.Accounts, d.Logger)
	d.UserHandler = handlers.NewUserHandler(d.Accounts, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Accounts, d.Logger)
	d.OAuthHandler = handlers.NewOAuthHandler(d.Reconciler, cfg.Auth.FrontendURL,
		cfg.IsProduction(), d.Logger, d.Providers...)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
