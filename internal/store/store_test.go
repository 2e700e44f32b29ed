package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adapters returns every store that runs without external services.
func adapters(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestStore_Users(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			u, err := s.CreateUser(ctx, "alice", "alice@x.com", "hash")
			require.NoError(t, err)
			require.NotZero(t, u.ID)
			assert.Equal(t, "alice", u.Username)
			assert.False(t, u.CreatedAt.IsZero())

			byEmail, err := s.UserByEmail(ctx, "alice@x.com")
			require.NoError(t, err)
			assert.Equal(t, u.ID, byEmail.ID)
			assert.Equal(t, "hash", byEmail.PasswordHash)

			byName, err := s.UserByUsername(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, u.ID, byName.ID)

			byID, err := s.UserByID(ctx, u.ID)
			require.NoError(t, err)
			assert.Equal(t, "alice@x.com", byID.Email)

			_, err = s.UserByEmail(ctx, "nobody@x.com")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.UserByUsername(ctx, "nobody")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.UserByID(ctx, 9999)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_DuplicateUser(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.CreateUser(ctx, "bob", "bob@x.com", "h")
			require.NoError(t, err)

			_, err = s.CreateUser(ctx, "bob2", "bob@x.com", "h")
			assert.ErrorIs(t, err, ErrUserExists, "same email")

			_, err = s.CreateUser(ctx, "bob", "bob2@x.com", "h")
			assert.ErrorIs(t, err, ErrUserExists, "same username")

			_, err = s.CreateUser(ctx, "bob2", "bob2@x.com", "h")
			assert.NoError(t, err)
		})
	}
}

func TestStore_RefreshTokens(t *testing.T) {
	for name, s := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			u, err := s.CreateUser(ctx, "carol", "carol@x.com", "h")
			require.NoError(t, err)

			expires := time.Now().Add(24 * time.Hour).Truncate(time.Second)
			require.NoError(t, s.CreateRefreshToken(ctx, "digest-1", u.ID, expires))
			require.NoError(t, s.CreateRefreshToken(ctx, "digest-2", u.ID, expires))

			rt, err := s.RefreshToken(ctx, "digest-1")
			require.NoError(t, err)
			assert.Equal(t, u.ID, rt.UserID)
			assert.False(t, rt.Revoked)
			assert.True(t, rt.ExpiresAt.Equal(expires))

			require.NoError(t, s.RevokeRefreshToken(ctx, "digest-1"))
			rt, err = s.RefreshToken(ctx, "digest-1")
			require.NoError(t, err)
			assert.True(t, rt.Revoked)
			assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "digest-1"), ErrAlreadyRevoked)

			rt, err = s.RefreshToken(ctx, "digest-2")
			require.NoError(t, err)
			assert.False(t, rt.Revoked)

			require.NoError(t, s.RevokeAllRefreshTokens(ctx, u.ID))
			rt, err = s.RefreshToken(ctx, "digest-2")
			require.NoError(t, err)
			assert.True(t, rt.Revoked)

			_, err = s.RefreshToken(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.RevokeRefreshToken(ctx, "missing"), ErrNotFound)

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u, err := m.CreateUser(ctx, "dave", "dave@x.com", "h")
	require.NoError(t, err)
	u.PasswordHash = "tampered"

	got, err := m.UserByEmail(ctx, "dave@x.com")
	require.NoError(t, err)
	assert.Equal(t, "h", got.PasswordHash)
}

func TestMemory_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.CreateUser(ctx, fmt.Sprintf("user%d", i), "same@x.com", "h")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, exists int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrUserExists)
		exists++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, exists)
}

func TestSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "erin", "erin@x.com", "h")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	u, err := s.UserByUsername(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, "erin@x.com", u.Email)
}

func TestSQLite_CorruptCreatedAt(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	defer s.Close()

	u, err := s.CreateUser(ctx, "frank", "frank@x.com", "h")
	require.NoError(t, err)
	require.NoError(t, s.CreateRefreshToken(ctx, "digest", u.ID, time.Now().Add(time.Hour)))

	_, err = s.db.ExecContext(ctx, `UPDATE users SET created_at = 'garbage' WHERE id = ?`, u.ID)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE refresh_tokens SET created_at = 'garbage' WHERE token_hash = ?`, "digest")
	require.NoError(t, err)

	_, err = s.UserByEmail(ctx, "frank@x.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "created_at")

	_, err = s.RefreshToken(ctx, "digest")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "created_at")
}
