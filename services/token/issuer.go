// Package token issues and validates the stateless session tokens (HS512 JWTs)
// that authenticate API requests.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/upb/securestarter/internal/observability"
	"github.com/upb/securestarter/models"
)

// MinSecretBytes is the minimum HMAC key length (256 bits)
const MinSecretBytes = 32

// DefaultTTL is the session token lifetime when none is configured
const DefaultTTL = 24 * time.Hour

var (
	// ErrWeakSecret is returned when the signing secret is missing or shorter than MinSecretBytes
	ErrWeakSecret = errors.New("jwt secret must be at least 256 bits")

	// ErrUnknownClaim is returned by ExtractClaim for names outside the claim set
	ErrUnknownClaim = errors.New("unknown claim")

	errUnsupportedAlgorithm = errors.New("unsupported signing algorithm")
)

// Config holds issuer settings
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// Option customizes an Issuer
type Option func(*Issuer)

// WithClock replaces time.Now, used to test expiry deterministically
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// WithMetrics records issuance counts
func WithMetrics(m observability.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = observability.OrNop(m)
	}
}

// Issuer signs and validates session tokens. It holds no mutable state and is
// safe for concurrent use.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	now     func() time.Time
	metrics observability.Metrics
}

// sessionClaims is the wire form of the token payload
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	AuthProvider string `json:"authProvider"`
	Verified     bool   `json:"isVerified"`
}

// NewIssuer validates cfg and builds an Issuer
func NewIssuer(cfg Config, opts ...Option) (*Issuer, error) {
	if len(cfg.Secret) < MinSecretBytes {
		return nil, fmt.Errorf("%w: got %d bytes", ErrWeakSecret, len(cfg.Secret))
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	i := &Issuer{
		secret:  secret,
		ttl:     cfg.TTL,
		issuer:  cfg.Issuer,
		now:     time.Now,
		metrics: observability.Nop{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the configured token lifetime
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a session token for p
func (i *Issuer) Issue(p *models.Principal) (string, error) {
	if p == nil {
		return "", errors.New("cannot issue token for nil principal")
	}

	now := i.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		UserID:       p.ID.String(),
		Email:        p.Email,
		Role:         string(p.Role),
		AuthProvider: string(p.AuthProvider),
		Verified:     p.Verified,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	i.metrics.RecordTokenIssued()
	return signed, nil
}

// Validate verifies signature and expiry in a single decode and returns the
// claims. On failure it returns an *AuthError and no claims.
func (i *Issuer) Validate(tokenString string) (*SessionClaims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc, parserOpts...)
	if err != nil {
		return nil, classify(err)
	}

	principalID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, &AuthError{Kind: KindMalformed, Err: fmt.Errorf("invalid subject: %w", err)}
	}

	sc := &SessionClaims{
		PrincipalID:  principalID,
		Email:        claims.Email,
		Role:         models.Role(claims.Role),
		AuthProvider: models.AuthProvider(claims.AuthProvider),
		Verified:     claims.Verified,
		TokenID:      claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		sc.IssuedAt = claims.IssuedAt.Time
	}
	return sc, nil
}

// ExtractClaim validates the token and returns a single named claim.
// Names: sub, userId, email, role, authProvider, isVerified, iat, exp, jti.
func (i *Issuer) ExtractClaim(tokenString, name string) (any, error) {
	claims, err := i.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	switch name {
	case "sub", "userId":
		return claims.PrincipalID, nil
	case "email":
		return claims.Email, nil
	case "role":
		return claims.Role, nil
	case "authProvider":
		return claims.AuthProvider, nil
	case "isVerified":
		return claims.Verified, nil
	case "iat":
		return claims.IssuedAt, nil
	case "exp":
		return claims.ExpiresAt, nil
	case "jti":
		return claims.TokenID, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClaim, name)
	}
}

func (i *Issuer) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method != jwt.SigningMethodHS512 {
		return nil, fmt.Errorf("%w: %v", errUnsupportedAlgorithm, t.Header["alg"])
	}
	return i.secret, nil
}

func classify(err error) *AuthError {
	switch {
	case errors.Is(err, errUnsupportedAlgorithm):
		return &AuthError{Kind: KindUnsupported, Err: err}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &AuthError{Kind: KindMalformed, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &AuthError{Kind: KindBadSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &AuthError{Kind: KindExpired, Err: err}
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		// alg header names a method the library does not know
		return &AuthError{Kind: KindUnsupported, Err: err}
	default:
		return &AuthError{Kind: KindMalformed, Err: err}
	}
}
