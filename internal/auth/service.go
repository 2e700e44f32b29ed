// Package auth wires password hashing, token issuance and the user store into
// the operations the HTTP layer exposes: register, login, authenticate, and
// the refresh session lifecycle.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/example/userauth/internal/password"
	"github.com/example/userauth/internal/store"
	"github.com/example/userauth/internal/token"
)

const TokenType = "bearer"

// TokenPair is what a successful login or refresh hands back. RefreshToken is
// empty when refresh sessions are disabled.
type TokenPair struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    time.Duration
	RefreshToken string
}

type Service struct {
	store      store.Store
	hasher     *password.Hasher
	tokens     *token.Service
	resolver   *Resolver
	log        *slog.Logger
	refreshTTL time.Duration
	now        func() time.Time

	// compared against when the email is unknown so both login failures
	// spend the same hashing time
	dummyHash string
}

type Option func(*Service)

// WithRefreshTTL enables refresh sessions with the given lifetime. Zero or a
// negative value disables them.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Service) { s.refreshTTL = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, hasher *password.Hasher, tokens *token.Service, opts ...Option) (*Service, error) {
	const op = "auth.NewService"

	if st == nil || hasher == nil || tokens == nil {
		return nil, fmt.Errorf("%s: store, hasher and token service are required", op)
	}
	s := &Service{
		store:    st,
		hasher:   hasher,
		tokens:   tokens,
		resolver: NewResolver(tokens),
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	dummy, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.dummyHash = dummy
	return s, nil
}

// AccessTokenLifetime reports how long issued access tokens stay valid.
func (s *Service) AccessTokenLifetime() time.Duration { return s.tokens.Lifetime() }

// RefreshEnabled reports whether login returns a refresh token.
func (s *Service) RefreshEnabled() bool { return s.refreshTTL > 0 }

// Register creates an account. Inputs are expected to be validated by the
// caller; a taken email or username yields a *ConflictError.
func (s *Service) Register(ctx context.Context, username, email, plaintext string) (*store.User, error) {
	const op = "auth.Register"
	log := s.log.With(slog.String("op", op))

	if _, err := s.store.UserByEmail(ctx, email); err == nil {
		return nil, &ConflictError{Field: "email"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.store.UserByUsername(ctx, username); err == nil {
		return nil, &ConflictError{Field: "username"}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	u, err := s.store.CreateUser(ctx, username, email, hash)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			// lost a race with a concurrent registration
			return nil, &ConflictError{}
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("user_id", u.ID))
	return u, nil
}

// Login checks the credentials and issues an access token for the email.
// Unknown email and wrong password both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*TokenPair, error) {
	const op = "auth.Login"
	log := s.log.With(slog.String("op", op))

	u, err := s.store.UserByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.hasher.Verify(plaintext, s.dummyHash)
		log.Info("login failed", slog.String("reason", "unknown email"))
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(plaintext, u.PasswordHash) {
		log.Info("login failed", slog.Int64("user_id", u.ID), slog.String("reason", "wrong password"))
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("user logged in", slog.Int64("user_id", u.ID))
	return pair, nil
}

// Authenticate resolves an Authorization header value to the user the bearer
// token was issued to.
func (s *Service) Authenticate(ctx context.Context, authorization string) (*store.User, error) {
	return s.resolver.Resolve(ctx, authorization, s.store.UserByEmail)
}

func (s *Service) issuePair(ctx context.Context, u *store.User) (*TokenPair, error) {
	access, err := s.tokens.Issue(u.Email)
	if err != nil {
		return nil, err
	}
	pair := &TokenPair{
		AccessToken: access,
		TokenType:   TokenType,
		ExpiresIn:   s.tokens.Lifetime(),
	}
	if s.RefreshEnabled() {
		pair.RefreshToken, err = s.newSession(ctx, u.ID)
		if err != nil {
			return nil, err
		}
	}
	return pair, nil
}
