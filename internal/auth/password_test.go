package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewBcryptHasher_Cost(t *testing.T) {
	tests := []struct {
		name string
		cost int
		want int
	}{
		{"min", bcrypt.MinCost, bcrypt.MinCost},
		{"custom", 6, 6},
		{"too low", 1, bcrypt.DefaultCost},
		{"too high", 99, bcrypt.DefaultCost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewBcryptHasher(tt.cost).Cost())
		})
	}
}

func TestBcryptHasher_HashAndCompare(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, h.Compare("correct horse", hash))
	assert.ErrorIs(t, h.Compare("battery staple", hash), ErrPasswordMismatch)
	assert.Error(t, h.Compare("correct horse", "not-a-bcrypt-hash"))
}

func TestBcryptHasher_EmptyPassword(t *testing.T) {
	_, err := NewBcryptHasher(bcrypt.MinCost).Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestBcryptHasher_PasswordLength(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{"72 ascii bytes", strings.Repeat("a", 72), nil},
		{"73 ascii bytes", strings.Repeat("a", 73), ErrPasswordTooLong},
		{"36 two-byte runes", strings.Repeat("é", 36), nil},
		{"40 two-byte runes", strings.Repeat("é", 40), ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Hash(tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMatches(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hash, err := h.Hash("secret-1")
	require.NoError(t, err)
	empty := ""

	assert.True(t, Matches(h, "secret-1", &hash))
	assert.False(t, Matches(h, "secret-2", &hash))
	assert.False(t, Matches(h, "secret-1", nil))
	assert.False(t, Matches(h, "secret-1", &empty))
}
