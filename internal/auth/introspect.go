package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/userauth/internal/store"
)

const (
	KindAccess  = "access_token"
	KindRefresh = "refresh_token"
)

// Introspection describes a presented token. Only Active is meaningful when
// the token is not active.
type Introspection struct {
	Active    bool
	Kind      string
	Subject   string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Introspect reports whether raw is a currently usable access or refresh
// token. It never fails for a bad token; errors are store failures only.
func (s *Service) Introspect(ctx context.Context, raw string) (*Introspection, error) {
	const op = "auth.Introspect"

	if claims, err := s.tokens.Validate(raw); err == nil {
		info := &Introspection{
			Active:  true,
			Kind:    KindAccess,
			Subject: claims.Subject,
			ID:      claims.ID,
		}
		if claims.ExpiresAt != nil {
			info.ExpiresAt = claims.ExpiresAt.Time
		}
		if claims.IssuedAt != nil {
			info.IssuedAt = claims.IssuedAt.Time
		}
		u, err := s.store.UserByEmail(ctx, claims.Subject)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return &Introspection{}, nil
		case err != nil:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		info.UserID = u.ID
		return info, nil
	}

	if !s.RefreshEnabled() {
		return &Introspection{}, nil
	}
	row, err := s.store.RefreshToken(ctx, digestToken(raw))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Introspection{}, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if row.Revoked || !s.now().Before(row.ExpiresAt) {
		return &Introspection{}, nil
	}
	info := &Introspection{
		Active:    true,
		Kind:      KindRefresh,
		UserID:    row.UserID,
		IssuedAt:  row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
	}
	if u, err := s.store.UserByID(ctx, row.UserID); err == nil {
		info.Subject = u.Email
	}
	return info, nil
}
