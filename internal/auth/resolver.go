package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/example/userauth/internal/store"
	"github.com/example/userauth/internal/token"
)

// UserLookup finds a user by email, returning store.ErrNotFound when absent.
type UserLookup func(ctx context.Context, email string) (*store.User, error)

var (
	errNoHeader    = errors.New("missing authorization header")
	errBadScheme   = errors.New("authorization scheme must be Bearer")
	errUnknownUser = errors.New("token subject does not resolve to a user")
)

// Resolver turns a bearer token into the user it was issued to. It is the
// single identity gate for protected operations and never mutates anything.
type Resolver struct {
	tokens *token.Service
}

func NewResolver(tokens *token.Service) *Resolver {
	return &Resolver{tokens: tokens}
}

// Resolve parses an Authorization header value of the form "Bearer <token>",
// validates the token and looks up its subject. Every failure wraps
// ErrUnauthenticated except lookup errors other than store.ErrNotFound, which
// are returned as is.
func (r *Resolver) Resolve(ctx context.Context, authorization string, lookup UserLookup) (*store.User, error) {
	raw, err := BearerToken(authorization)
	if err != nil {
		return nil, unauthenticated(err)
	}
	claims, err := r.tokens.Validate(raw)
	if err != nil {
		return nil, unauthenticated(err)
	}
	u, err := lookup(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, unauthenticated(errUnknownUser)
		}
		return nil, err
	}
	return u, nil
}

// BearerToken extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoHeader
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errBadScheme
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", errBadScheme
	}
	return raw, nil
}
