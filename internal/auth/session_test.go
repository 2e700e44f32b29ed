package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/userauth/internal/password"
	"github.com/example/userauth/internal/store"
)

const refreshTTL = 30 * 24 * time.Hour

func loginWithRefresh(t *testing.T) (*fixture, *TokenPair) {
	t.Helper()
	f := newFixture(t, WithRefreshTTL(refreshTTL))
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "alice", "alice@x.com", "pw1")
	require.NoError(t, err)
	pair, err := f.svc.Login(ctx, "alice@x.com", "pw1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshToken)
	return f, pair
}

func TestRefresh_Rotates(t *testing.T) {
	f, pair := loginWithRefresh(t)
	ctx := context.Background()

	stored, err := f.store.RefreshToken(ctx, digestToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.Equal(f.clock.Now().Add(refreshTTL)))

	_, err = f.store.RefreshToken(ctx, pair.RefreshToken)
	assert.Error(t, err, "raw token is never stored")

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	u, err := f.svc.Authenticate(ctx, "Bearer "+next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	old, err := f.store.RefreshToken(ctx, digestToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.True(t, old.Revoked)
}

func TestRefresh_ReuseRevokesAll(t *testing.T) {
	f, pair := loginWithRefresh(t)
	ctx := context.Background()

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionReused)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionReused, "the rotated token was revoked too")
}

func TestRefresh_ConcurrentRotationWinsOnce(t *testing.T) {
	f, pair := loginWithRefresh(t)
	ctx := context.Background()

	const callers = 2
	gated := &gatedStore{Memory: f.store}
	gated.reads.Add(callers)
	svc, err := NewService(gated, password.New(password.WithCost(bcrypt.MinCost)), f.tokens,
		WithRefreshTTL(refreshTTL), WithClock(f.clock.Now))
	require.NoError(t, err)

	var wg sync.WaitGroup
	pairs := make([]*TokenPair, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pairs[i], errs[i] = svc.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	var winner *TokenPair
	var reused int
	for i := range errs {
		if errs[i] == nil {
			require.Nil(t, winner, "only one refresh may rotate the token")
			winner = pairs[i]
			continue
		}
		assert.ErrorIs(t, errs[i], ErrSessionReused)
		reused++
	}
	require.NotNil(t, winner)
	assert.Equal(t, 1, reused)

	rt, err := f.store.RefreshToken(ctx, digestToken(pair.RefreshToken))
	require.NoError(t, err)
	assert.True(t, rt.Revoked)
}

// gatedStore holds every refresh token read until all expected callers have
// read the row, so they all observe it as live.
type gatedStore struct {
	*store.Memory
	reads sync.WaitGroup
}

func (s *gatedStore) RefreshToken(ctx context.Context, tokenHash string) (*store.RefreshToken, error) {
	rt, err := s.Memory.RefreshToken(ctx, tokenHash)
	s.reads.Done()
	s.reads.Wait()
	return rt, err
}

func TestLogout_Twice(t *testing.T) {
	f, pair := loginWithRefresh(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken))
	assert.ErrorIs(t, f.svc.Logout(ctx, pair.RefreshToken), ErrSessionInvalid)
}

func TestRefresh_Expired(t *testing.T) {
	f, pair := loginWithRefresh(t)

	f.clock.Advance(refreshTTL)
	_, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRefresh_Unknown(t *testing.T) {
	f, _ := loginWithRefresh(t)

	_, err := f.svc.Refresh(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrSessionInvalid)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.NotErrorIs(t, err, ErrSessionReused)
}

func TestLogout(t *testing.T) {
	f, pair := loginWithRefresh(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Logout(ctx, pair.RefreshToken))
	assert.ErrorIs(t, f.svc.Logout(ctx, "deadbeef"), ErrSessionInvalid)

	_, err := f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionReused)

	// access tokens are stateless and outlive the session
	_, err = f.svc.Authenticate(ctx, "Bearer "+pair.AccessToken)
	assert.NoError(t, err)
}

func TestSessionsDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "anything")
	assert.ErrorIs(t, err, ErrSessionDisabled)
	assert.ErrorIs(t, f.svc.Logout(ctx, "anything"), ErrSessionDisabled)
}
