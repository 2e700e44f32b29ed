package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps everything in process. Not recommended for production; useful
// for tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	byEmail  map[string]*User
	byName   map[string]*User
	byID     map[int64]*User
	sessions map[string]*RefreshToken
	seq      int64
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		byEmail:  map[string]*User{},
		byName:   map[string]*User{},
		byID:     map[int64]*User{},
		sessions: map[string]*RefreshToken{},
		seq:      1,
		now:      time.Now,
	}
}

func (m *Memory) CreateUser(_ context.Context, username, email, passwordHash string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[email]; ok {
		return nil, ErrUserExists
	}
	if _, ok := m.byName[username]; ok {
		return nil, ErrUserExists
	}
	u := &User{ID: m.seq, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: m.now()}
	m.seq++
	m.byEmail[email] = u
	m.byName[username] = u
	m.byID[u.ID] = u
	return copyUser(u), nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.byEmail, email)
}

func (m *Memory) UserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.byName, username)
}

func (m *Memory) UserByID(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lookup(m.byID, id)
}

func (m *Memory) CreateRefreshToken(_ context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[tokenHash] = &RefreshToken{TokenHash: tokenHash, UserID: userID, ExpiresAt: expiresAt, CreatedAt: m.now()}
	return nil
}

func (m *Memory) RefreshToken(_ context.Context, tokenHash string) (*RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.sessions[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.sessions[tokenHash]
	if !ok {
		return ErrNotFound
	}
	if t.Revoked {
		return ErrAlreadyRevoked
	}
	t.Revoked = true
	return nil
}

func (m *Memory) RevokeAllRefreshTokens(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.sessions {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func lookup[K comparable](idx map[K]*User, key K) (*User, error) {
	u, ok := idx[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func copyUser(u *User) *User {
	cp := *u
	return &cp
}
