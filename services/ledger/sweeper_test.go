package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/securestarter/models"
	"go.uber.org/zap"
)

func TestSweeper_Disabled(t *testing.T) {
	f := newFixture(t)
	s := NewSweeper(f.ledger, 0, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("disabled sweeper did not return")
	}
}

func TestSweeper_RemovesExpiredUntilCancelled(t *testing.T) {
	f := newFixture(t)
	p := f.addPrincipal(t, "password-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	value, err := f.ledger.IssuePasswordReset(ctx, p.ID)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	s := NewSweeper(f.ledger, 10*time.Millisecond, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, ok := f.store.Token(value)
		return !ok
	}, time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, f.ledger.ValidateTokenIsLive(ctx, value, models.TokenKindPasswordReset), ErrNotFound)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancellation")
	}
}
