package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteTime = "2006-01-02 15:04:05"

type SQLite struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (creating if needed) the database at path and ensures the
// schema exists.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	const op = "store.NewSQLite"

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// one writer; also keeps ":memory:" a single database
	d.SetMaxOpenConns(1)

	s := &SQLite{db: d, path: path}
	if err := s.Init(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (s *SQLite) Init(ctx context.Context) error {
	queries := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS refresh_tokens (
			token_hash TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expires_at INTEGER NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) CreateUser(ctx context.Context, username, email, passwordHash string) (*User, error) {
	const op = "store.SQLite.CreateUser"

	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username,email,hashed_password,created_at) VALUES(?,?,?,?)`,
		username, email, passwordHash, now.Format(sqliteTime))
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &User{ID: id, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: now}, nil
}

func (s *SQLite) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.user(ctx, `SELECT id,username,email,hashed_password,created_at FROM users WHERE email = ?`, email)
}

func (s *SQLite) UserByUsername(ctx context.Context, username string) (*User, error) {
	return s.user(ctx, `SELECT id,username,email,hashed_password,created_at FROM users WHERE username = ?`, username)
}

func (s *SQLite) UserByID(ctx context.Context, id int64) (*User, error) {
	return s.user(ctx, `SELECT id,username,email,hashed_password,created_at FROM users WHERE id = ?`, id)
}

func (s *SQLite) user(ctx context.Context, query string, arg any) (*User, error) {
	var u User
	var created string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.SQLite.user: %w", err)
	}
	if u.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
		return nil, fmt.Errorf("store.SQLite.user: parse created_at: %w", err)
	}
	return &u, nil
}

func (s *SQLite) CreateRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens(token_hash,user_id,expires_at,created_at) VALUES(?,?,?,?)`,
		tokenHash, userID, expiresAt.Unix(), time.Now().UTC().Format(sqliteTime))
	if err != nil {
		return fmt.Errorf("store.SQLite.CreateRefreshToken: %w", err)
	}
	return nil
}

func (s *SQLite) RefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	var t RefreshToken
	var expires int64
	var revoked int
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT token_hash,user_id,expires_at,revoked,created_at FROM refresh_tokens WHERE token_hash = ?`, tokenHash).
		Scan(&t.TokenHash, &t.UserID, &expires, &revoked, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store.SQLite.RefreshToken: %w", err)
	}
	t.ExpiresAt = time.Unix(expires, 0)
	t.Revoked = revoked != 0
	if t.CreatedAt, err = time.Parse(sqliteTime, created); err != nil {
		return nil, fmt.Errorf("store.SQLite.RefreshToken: parse created_at: %w", err)
	}
	return &t, nil
}

func (s *SQLite) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const op = "store.SQLite.RevokeRefreshToken"

	res, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE token_hash = ? AND revoked = 0`, tokenHash)
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
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM refresh_tokens WHERE token_hash = ?`, tokenHash).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	}
	return ErrAlreadyRevoked
}

func (s *SQLite) RevokeAllRefreshTokens(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("store.SQLite.RevokeAllRefreshTokens: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQLite) Close() error                   { return s.db.Close() }

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// extended result codes disabled
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
