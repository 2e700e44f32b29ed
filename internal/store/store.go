// Package store persists users and refresh sessions. Three adapters share one
// interface: an in-memory map, SQLite and Postgres.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("store: not found")
	ErrUserExists     = errors.New("store: user already exists")
	ErrAlreadyRevoked = errors.New("store: refresh token already revoked")
)

// User is the persisted account. PasswordHash is never serialised.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshToken is a server-side session. Only a digest of the token the
// client holds is stored.
type RefreshToken struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Store is implemented by every adapter. Lookups return ErrNotFound when no
// row matches; CreateUser returns ErrUserExists on a unique violation.
// RevokeRefreshToken only flips a live token: it returns ErrAlreadyRevoked
// when the row is revoked already, so exactly one caller wins a rotation.
type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error)
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)

	CreateRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error
	RefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID int64) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
	_ Store = (*Postgres)(nil)
)
