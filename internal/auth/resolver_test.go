package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/userauth/internal/store"
	"github.com/example/userauth/internal/token"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"BEARER  abc ", "abc", true},
		{"", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"Bearer a b", "", false},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if !tt.ok {
			assert.Error(t, err, "header %q", tt.header)
			continue
		}
		require.NoError(t, err, "header %q", tt.header)
		assert.Equal(t, tt.want, got)
	}
}

func TestResolver_LookupErrors(t *testing.T) {
	tokens, err := token.New(token.Config{Secret: []byte("s")})
	require.NoError(t, err)
	r := NewResolver(tokens)
	raw, err := tokens.Issue("alice@x.com")
	require.NoError(t, err)
	ctx := context.Background()

	var looked string
	found := func(_ context.Context, email string) (*store.User, error) {
		looked = email
		return &store.User{ID: 1, Email: email}, nil
	}
	u, err := r.Resolve(ctx, "Bearer "+raw, found)
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", looked)
	assert.Equal(t, int64(1), u.ID)

	missing := func(context.Context, string) (*store.User, error) { return nil, store.ErrNotFound }
	_, err = r.Resolve(ctx, "Bearer "+raw, missing)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	boom := errors.New("db down")
	broken := func(context.Context, string) (*store.User, error) { return nil, boom }
	_, err = r.Resolve(ctx, "Bearer "+raw, broken)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestResolver_DoesNotLookUpOnBadToken(t *testing.T) {
	tokens, err := token.New(token.Config{Secret: []byte("s"), Lifetime: time.Minute})
	require.NoError(t, err)
	other, err := token.New(token.Config{Secret: []byte("other")})
	require.NoError(t, err)
	forged, err := other.Issue("alice@x.com")
	require.NoError(t, err)

	called := false
	lookup := func(context.Context, string) (*store.User, error) {
		called = true
		return &store.User{}, nil
	}
	_, err = NewResolver(tokens).Resolve(context.Background(), "Bearer "+forged, lookup)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.ErrorIs(t, err, token.ErrInvalidSignature)
	assert.False(t, called)
}
