package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE Postgres reports for duplicate keys.
const uniqueViolation = "23505"

type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to dsn. Tables are created by migrations, so this only
// verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	const op = "store.NewPostgres"

	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	d.SetMaxOpenConns(10)
	d.SetMaxIdleConns(2)
	d.SetConnMaxLifetime(time.Hour)
	d.SetConnMaxIdleTime(30 * time.Minute)

	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	return newPostgres(d), nil
}

func newPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	const op = "store.Postgres.CreateUser"

	u := &User{Username: username, Email: email, PasswordHash: passwordHash}
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(username,email,hashed_password) VALUES($1,$2,$3) RETURNING id,created_at`,
		username, email, passwordHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (*User, error) {
	return p.user(ctx, `SELECT id,username,email,hashed_password,created_at FROM users WHERE email = $1`, email)
}

func (p *Postgres) UserByUsername(ctx context.Context, username string) (*User, error) {
	return p.user(ctx, `SELECT id,username,email,hashed_password,created_at FROM users WHERE username = $1`, username)
}

func (p *Postgres) UserByID(ctx context.Context, id int64) (*User, error) {
	return p.user(ctx, `SELECT id,username,email,hashed_password,created_at FROM users WHERE id = $1`, id)
}

func (p *Postgres) user(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	err := p.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.Postgres.user: %w", err)
	}
	return &u, nil
}

func (p *Postgres) CreateRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens(token_hash,user_id,expires_at) VALUES($1,$2,$3)`,
		tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("store.Postgres.CreateRefreshToken: %w", err)
	}
	return nil
}

func (p *Postgres) RefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var t RefreshToken
	err := p.db.QueryRowContext(ctx,
		`SELECT token_hash,user_id,expires_at,revoked,created_at FROM refresh_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.Postgres.RefreshToken: %w", err)
	}
	return &t, nil
}

func (p *Postgres) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const op = "store.Postgres.RevokeRefreshToken"

	res, err := p.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = true WHERE token_hash = $1 AND revoked = false`, tokenHash)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		return nil
	}
	var one int
	err = p.db.QueryRowContext(ctx, `SELECT 1 FROM refresh_tokens WHERE token_hash = $1`, tokenHash).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	return ErrAlreadyRevoked
}

func (p *Postgres) RevokeAllRefreshTokens(ctx context.Context, userID int64) error {
	if _, err := p.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = true WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("store.Postgres.RevokeAllRefreshTokens: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }
func (p *Postgres) Close() error                   { return p.db.Close() }
