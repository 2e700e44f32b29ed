// Package token issues and validates signed, time-limited bearer tokens.
//
// Tokens are compact JWS JWTs signed with an HMAC algorithm chosen by
// configuration. No server-side state is kept: a token is valid iff its
// signature verifies under the current secret and its expiry is in the future.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultLifetime is used when Config.Lifetime is zero.
const DefaultLifetime = 30 * time.Minute

var (
	ErrMalformed        = errors.New("token: malformed")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrExpired          = errors.New("token: expired")
)

// Config is fixed at construction.
type Config struct {
	Secret    []byte
	Algorithm string
	Lifetime  time.Duration
}

// Claims is the decoded payload of a valid token.
type Claims struct {
	jwt.RegisteredClaims
}

// Service is immutable after New and safe for concurrent use.
type Service struct {
	secret   []byte
	method   jwt.SigningMethod
	lifetime time.Duration
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token: secret is required")
	}
	method, err := SigningMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	lifetime := cfg.Lifetime
	if lifetime == 0 {
		lifetime = DefaultLifetime
	}
	if lifetime < 0 {
		return nil, fmt.Errorf("token: lifetime must be positive, got %s", lifetime)
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	s := &Service{
		secret:   secret,
		method:   method,
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SigningMethod resolves a configured algorithm name. Only the HMAC family is
// accepted because the service is keyed by a shared secret.
func SigningMethod(alg string) (jwt.SigningMethod, error) {
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	m, ok := jwt.GetSigningMethod(strings.ToUpper(alg)).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("token: unsupported algorithm %q (supported: HS256, HS384, HS512)", alg)
	}
	return m, nil
}

// Lifetime reports how long issued tokens stay valid.
func (s *Service) Lifetime() time.Duration { return s.lifetime }

// Issue signs a token asserting subject, expiring one lifetime from now.
func (s *Service) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("token: empty subject")
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Validate verifies the signature and expiry of raw and returns its claims.
// The error is always one of ErrMalformed, ErrInvalidSignature or ErrExpired,
// wrapping the underlying parser error.
func (s *Service) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, s.keyFunc,
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims, nil
}

func (s *Service) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != s.method.Alg() {
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
	return s.secret, nil
}

// classify maps parser errors onto the package taxonomy. Signature problems
// are checked before expiry because the parser verifies the signature first.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
