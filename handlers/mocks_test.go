package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/securestarter/middleware"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/services/account"
	"github.com/upb/securestarter/services/identity"
	"github.com/upb/securestarter/services/token"
	"github.com/upb/securestarter/utils"
)

// MockAccountService is a mock implementation of AccountService
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) Signup(ctx context.Context, in account.SignupInput) error {
	return m.Called(ctx, in).Error(0)
}

func (m *MockAccountService) Login(ctx context.Context, email, password string) (*account.LoginResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.LoginResult), args.Error(1)
}

func (m *MockAccountService) VerifyEmail(ctx context.Context, value string) error {
	return m.Called(ctx, value).Error(0)
}

func (m *MockAccountService) ForgotPassword(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAccountService) ResendVerification(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAccountService) ResetPassword(ctx context.Context, value, newPassword string) error {
	return m.Called(ctx, value, newPassword).Error(0)
}

func (m *MockAccountService) ValidateResetToken(ctx context.Context, value string) error {
	return m.Called(ctx, value).Error(0)
}

func (m *MockAccountService) Me(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Principal), args.Error(1)
}

func (m *MockAccountService) UpdateProfile(ctx context.Context, id uuid.UUID, firstName, lastName *string) (*models.Principal, error) {
	args := m.Called(ctx, id, firstName, lastName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Principal), args.Error(1)
}

func (m *MockAccountService) ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	return m.Called(ctx, id, currentPassword, newPassword).Error(0)
}

func (m *MockAccountService) SetPassword(ctx context.Context, id uuid.UUID, password string) error {
	return m.Called(ctx, id, password).Error(0)
}

// MockReconciler is a mock implementation of Reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, a identity.Assertion) (*identity.Result, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Result), args.Error(1)
}

// MockProvider is a mock implementation of identity.Provider
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return "google"
}

func (m *MockProvider) AuthCodeURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockProvider) Exchange(ctx context.Context, code string) (*identity.Assertion, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Assertion), args.Error(1)
}

func testPrincipal() *models.Principal {
	p := models.NewLocalPrincipal("alice@example.com", "hash", "Alice", "Smith")
	p.Verified = true
	p.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return p
}

func withIdentity(ctx context.Context, p *models.Principal) context.Context {
	return middleware.WithIdentity(ctx, &token.SessionClaims{
		PrincipalID:  p.ID,
		Email:        p.Email,
		Role:         p.Role,
		AuthProvider: p.AuthProvider,
		Verified:     p.Verified,
	})
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var resp utils.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) utils.MessageResponse {
	t.Helper()
	var resp utils.MessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}
