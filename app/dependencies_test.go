package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/securestarter/config"
	"github.com/upb/securestarter/repositories/memory"
	"github.com/upb/securestarter/repositories/postgres"
	"github.com/upb/securestarter/services/token"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const testSecret = "0123456789abcdef0123456789abcdef-app-test"

func TestNewDependencies(t *testing.T) {
	t.Run("successful initialization with all components", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		// Skip if database not available
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Verify infrastructure
		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Logger)

		// Verify repositories
		assert.NotNil(t, deps.Repositories.Principals)
		assert.NotNil(t, deps.Repositories.EphemeralTokens)
		assert.NotNil(t, deps.TxManager)

		// Cleanup
		err = deps.Close(ctx)
		assert.NoError(t, err)
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database.Host = "invalid-host-that-does-not-exist"
		logger := zaptest.NewLogger(t)

		deps, err := NewDependencies(ctx, cfg, logger)
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("weak secret fails before database", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = "short"
		cfg.Database.Host = "invalid-host-that-does-not-exist"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Nil(t, deps)
		assert.ErrorIs(t, err, token.ErrWeakSecret)
	})
}

func TestNewDependenciesWithStore(t *testing.T) {
	newDeps := func(t *testing.T, mutate func(*config.Config)) (*Dependencies, error) {
		t.Helper()
		cfg := testConfig(t)
		if mutate != nil {
			mutate(cfg)
		}
		store := memory.NewStore()
		return NewDependenciesWithStore(cfg, zaptest.NewLogger(t), store.Repositories(), store.TransactionManager())
	}

	t.Run("wires the authentication core", func(t *testing.T) {
		deps, err := newDeps(t, nil)
		require.NoError(t, err)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.NotNil(t, deps.Issuer)
		assert.NotNil(t, deps.Ledger)
		assert.NotNil(t, deps.Sweeper)
		assert.NotNil(t, deps.Reconciler)
		assert.NotNil(t, deps.Accounts)
		assert.NotNil(t, deps.Gatekeeper)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.UserHandler)
		assert.NotNil(t, deps.OAuthHandler)
		assert.NotNil(t, deps.AdminHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.Empty(t, deps.Providers)
		assert.Equal(t, time.Hour, deps.Issuer.TTL())

		assert.NoError(t, deps.Close(context.Background()))
	})

	t.Run("weak secret", func(t *testing.T) {
		for _, secret := range []string{"", "0123456789abcdef0123456789abcde"} {
			deps, err := newDeps(t, func(c *config.Config) { c.Auth.JWTSecret = secret })
			assert.Nil(t, deps)
			assert.ErrorIs(t, err, token.ErrWeakSecret)
		}
	})

	t.Run("metrics disabled", func(t *testing.T) {
		deps, err := newDeps(t, nil)
		require.NoError(t, err)
		assert.Nil(t, deps.Registry)
		assert.NotNil(t, deps.Metrics)
	})

	t.Run("metrics enabled", func(t *testing.T) {
		deps, err := newDeps(t, func(c *config.Config) { c.Observability.MetricsEnabled = true })
		require.NoError(t, err)
		require.NotNil(t, deps.Registry)

		families, err := deps.Registry.Gather()
		require.NoError(t, err)
		assert.NotEmpty(t, families)
	})

	t.Run("google provider", func(t *testing.T) {
		deps, err := newDeps(t, func(c *config.Config) {
			c.Auth.GoogleClientID = "client-id"
			c.Auth.GoogleClientSecret = "client-secret"
		})
		require.NoError(t, err)
		require.Len(t, deps.Providers, 1)
		assert.Equal(t, "google", deps.Providers[0].Name())
	})
}

func TestDependenciesClose(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		logger := zaptest.NewLogger(t)

		// Skip if database not available
		if !isDatabaseAvailable(t, cfg) {
			t.Skip("database not available")
		}

		deps, err := NewDependencies(ctx, cfg, logger)
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Close should succeed
		err = deps.Close(ctx)
		assert.NoError(t, err)
	})
}

// Test helpers

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: config.DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "securestarter",
			Password:        "securestarter",
			Database:        "securestarter_test",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: config.AuthConfig{
			JWTSecret:       testSecret,
			JWTExpirationMS: int64(time.Hour / time.Millisecond),
			JWTIssuer:       "securestarter",
			FrontendURL:     "http://localhost:3000",
			SweepInterval:   time.Hour,
			BcryptCost:      4,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			MetricsEnabled: false,
		},
	}
}

func isDatabaseAvailable(t *testing.T, cfg *config.Config) bool {
	t.Helper()
	logger := zap.NewNop()
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return false
	}
	defer factory.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return factory.GetDB().PingContext(ctx) == nil
}
