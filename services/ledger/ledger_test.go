package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/securestarter/internal/auth"
	"github.com/upb/securestarter/models"
	"github.com/upb/securestarter/repositories/memory"
	"github.com/upb/securestarter/services"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store  *memory.Store
	ledger *Ledger
	clock  *testClock
	hasher *auth.BcryptHasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	l := New(store.Repositories(), store.TransactionManager(), hasher, zap.NewNop(), WithClock(clock.Now))
	return &fixture{store: store, ledger: l, clock: clock, hasher: hasher}
}

func (f *fixture) addPrincipal(t *testing.T, password string) *models.Principal {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	p := models.NewLocalPrincipal(uuid.NewString()+"@example.com", hash, "Ada", "Lovelace")
	require.NoError(t, f.store.Repositories().Principals.Create(context.Background(), p))
	return p
}

func TestLedger_IssueVerification(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")

	value, err := f.ledger.IssueVerification(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, value, 43)

	tok, ok := f.store.Token(value)
	require.True(t, ok)
	assert.Equal(t, models.TokenKindVerification, tok.Kind)
	assert.Equal(t, p.ID, tok.PrincipalID)
	assert.False(t, tok.Used)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), tok.ExpiresAt)
}

func TestLedger_IssuePasswordResetTTL(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")

	value, err := f.ledger.IssuePasswordReset(context.Background(), p.ID)
	require.NoError(t, err)

	tok, ok := f.store.Token(value)
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(time.Hour), tok.ExpiresAt)
}

func TestLedger_IssueUnknownPrincipal(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.IssueVerification(context.Background(), uuid.New())
	assert.ErrorIs(t, err, services.ErrPrincipalNotFound)
}

func TestLedger_IssueInvalidatesPrevious(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx := context.Background()

	first, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)
	second, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	assert.ErrorIs(t, f.ledger.ValidateTokenIsLive(ctx, first, models.TokenKindPasswordReset), ErrAlreadyUsed)
	assert.NoError(t, f.ledger.ValidateTokenIsLive(ctx, second, models.TokenKindPasswordReset))

	// other kinds are untouched
	verification, err := f.ledger.IssueVerification(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)
	assert.NoError(t, f.ledger.ValidateTokenIsLive(ctx, verification, models.TokenKindVerification))
}

func TestLedger_IssueRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx := context.Background()

	first, err := f.ledger.IssueVerification(ctx, p.ID)
	require.NoError(t, err)

	f.store.InjectFault("CreateToken", errors.New("disk full"))
	_, err = f.ledger.IssueVerification(ctx, p.ID)
	require.Error(t, err)
	assert.True(t, services.IsInternalError(err))

	// invalidation of the first token was rolled back with the failed insert
	assert.NoError(t, f.ledger.ValidateTokenIsLive(ctx, first, models.TokenKindVerification))
}

func TestLedger_ConsumeVerification(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx := context.Background()

	value, err := f.ledger.IssueVerification(ctx, p.ID)
	require.NoError(t, err)

	verified, err := f.ledger.ConsumeVerification(ctx, value)
	require.NoError(t, err)
	assert.Equal(t, p.ID, verified)

	stored, _ := f.store.Principal(p.ID)
	assert.True(t, stored.Verified)
	tok, _ := f.store.Token(value)
	assert.True(t, tok.Used)

	verified, err = f.ledger.ConsumeVerification(ctx, value)
	assert.ErrorIs(t, err, ErrAlreadyUsed)
	assert.Equal(t, uuid.Nil, verified)
	assert.True(t, services.IsValidationError(err))
	assert.Equal(t, "Token has already been used", services.GetErrorMessage(err))
}

func TestLedger_ConsumeVerificationGuards(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx := context.Background()

	reset, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		want  error
		msg   string
	}{
		{"empty", "", ErrNotFound, "Invalid or expired token"},
		{"unknown", "does-not-exist", ErrNotFound, "Invalid or expired token"},
		{"wrong kind", reset, ErrNotFound, "Invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.ConsumeVerification(ctx, tt.value)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.msg, services.GetErrorMessage(err))
		})
	}
}

func TestLedger_ConsumeVerificationExpired(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx := context.Background()

	value, err := f.ledger.IssueVerification(ctx, p.ID)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.ledger.ConsumeVerification(ctx, value)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, "Token has expired", services.GetErrorMessage(err))

	stored, _ := f.store.Principal(p.ID)
	assert.False(t, stored.Verified)
}

func TestLedger_ConsumeVerificationRollsBack(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx := context.Background()

	value, err := f.ledger.IssueVerification(ctx, p.ID)
	require.NoError(t, err)

	f.store.InjectFault("MarkVerified", errors.New("connection reset"))
	_, err = f.ledger.ConsumeVerification(ctx, value)
	require.Error(t, err)
	assert.True(t, services.IsInternalError(err))

	tok, _ := f.store.Token(value)
	assert.False(t, tok.Used, "token consumption must roll back with the principal update")

	_, err = f.ledger.ConsumeVerification(ctx, value)
	require.NoError(t, err)
}

func TestLedger_ConcurrentConsumeVerification(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx := context.Background()

	value, err := f.ledger.IssueVerification(ctx, p.ID)
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.ledger.ConsumeVerification(ctx, value)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	var successes, alreadyUsed int
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrAlreadyUsed):
			alreadyUsed++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, alreadyUsed)
}

func TestLedger_ConsumePasswordReset(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "old-password")
	ctx := context.Background()

	value, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.ledger.ConsumePasswordReset(ctx, value, "new-password"))

	stored, _ := f.store.Principal(p.ID)
	assert.NoError(t, f.hasher.Compare("new-password", *stored.PasswordHash))

	err = f.ledger.ConsumePasswordReset(ctx, value, "another-password")
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestLedger_ConsumePasswordResetSameSecret(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "old-password")
	ctx := context.Background()

	value, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)

	err = f.ledger.ConsumePasswordReset(ctx, value, "old-password")
	assert.ErrorIs(t, err, ErrSameSecret)
	assert.Equal(t, "New password cannot be the same as the old password", services.GetErrorMessage(err))

	tok, _ := f.store.Token(value)
	assert.False(t, tok.Used)
	stored, _ := f.store.Principal(p.ID)
	assert.NoError(t, f.hasher.Compare("old-password", *stored.PasswordHash))

	// the token is still usable with a different password
	require.NoError(t, f.ledger.ConsumePasswordReset(ctx, value, "new-password"))
}

func TestLedger_ConsumePasswordResetExpiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    error
	}{
		{"59 minutes", 59 * time.Minute, nil},
		{"61 minutes", 61 * time.Minute, ErrExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.addPrincipal(t, "old-password")
			ctx := context.Background()

			value, err := f.ledger.IssuePasswordReset(ctx, p.ID)
			require.NoError(t, err)

			f.clock.Advance(tt.elapsed)
			err = f.ledger.ConsumePasswordReset(ctx, value, "new-password")
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLedger_ConsumePasswordResetForExternalPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := models.NewExternalPrincipal("ext@example.com", "google-1", "", "")
	require.NoError(t, f.store.Repositories().Principals.Create(ctx, p))

	value, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.ledger.ConsumePasswordReset(ctx, value, "first-password"))
	stored, _ := f.store.Principal(p.ID)
	assert.True(t, stored.HasPassword())
}

func TestLedger_ConsumePasswordResetEmptyPassword(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "old-password")

	value, err := f.ledger.IssuePasswordReset(context.Background(), p.ID)
	require.NoError(t, err)

	err = f.ledger.ConsumePasswordReset(context.Background(), value, "")
	assert.True(t, services.IsValidationError(err))
}

func TestLedger_ConsumePasswordResetTooLong(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "old-password")
	ctx := context.Background()

	value, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)

	// 40 runes, 80 bytes
	long := strings.Repeat("é", 40)

	err = f.ledger.ConsumePasswordReset(ctx, value, long)
	assert.ErrorIs(t, err, services.ErrPasswordTooLong)
	assert.NoError(t, f.ledger.ValidateTokenIsLive(ctx, value, models.TokenKindPasswordReset),
		"rejected password leaves the token live")

	require.NoError(t, f.ledger.ConsumePasswordReset(ctx, value, "new-password"))
}

func TestLedger_ConsumePasswordResetGuardsBeforeHashing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.ledger.ConsumePasswordReset(ctx, "no-such-token", strings.Repeat("é", 40))
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.ledger.ConsumePasswordReset(ctx, "no-such-token", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_SweepExpired(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx := context.Background()

	reset, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)
	verification, err := f.ledger.IssueVerification(ctx, p.ID)
	require.NoError(t, err)

	removed, err := f.ledger.SweepExpired(ctx, f.clock.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, ok := f.store.Token(reset)
	assert.False(t, ok)
	_, ok = f.store.Token(verification)
	assert.True(t, ok)
}

func TestLedger_SweepExpiredError(t *testing.T) {
	f := newFixture(t)
	f.store.InjectFault("DeleteExpired", errors.New("timeout"))

	_, err := f.ledger.SweepExpired(context.Background(), f.clock.Now())
	assert.Error(t, err)
}
