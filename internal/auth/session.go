package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/userauth/internal/store"
)

const refreshTokenBytes = 32

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked. Presenting an already revoked token revokes every session of its
// owner.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	const op = "auth.Refresh"
	log := s.log.With(slog.String("op", op))

	if !s.RefreshEnabled() {
		return nil, ErrSessionDisabled
	}

	digest := digestToken(refreshToken)
	row, err := s.store.RefreshToken(ctx, digest)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if row.Revoked {
		return nil, s.revokeReused(ctx, log, op, row.UserID)
	}
	if !s.now().Before(row.ExpiresAt) {
		return nil, ErrSessionExpired
	}

	u, err := s.store.UserByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// rotate; a concurrent refresh of the same token loses here
	if err := s.store.RevokeRefreshToken(ctx, digest); err != nil {
		if errors.Is(err, store.ErrAlreadyRevoked) || errors.Is(err, store.ErrNotFound) {
			return nil, s.revokeReused(ctx, log, op, row.UserID)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pair, err := s.issuePair(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Debug("session rotated", slog.Int64("user_id", u.ID))
	return pair, nil
}

func (s *Service) revokeReused(ctx context.Context, log *slog.Logger, op string, userID int64) error {
	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Warn("refresh token reuse, all sessions revoked", slog.Int64("user_id", userID))
	return ErrSessionReused
}

// Logout revokes a single refresh token. Access tokens already issued stay
// valid until they expire.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "auth.Logout"

	if !s.RefreshEnabled() {
		return ErrSessionDisabled
	}
	err := s.store.RevokeRefreshToken(ctx, digestToken(refreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrAlreadyRevoked) {
			return ErrSessionInvalid
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) newSession(ctx context.Context, userID int64) (string, error) {
	raw, err := genToken(refreshTokenBytes)
	if err != nil {
		return "", err
	}
	expires := s.now().Add(s.refreshTTL)
	if err := s.store.CreateRefreshToken(ctx, digestToken(raw), userID, expires); err != nil {
		return "", err
	}
	return raw, nil
}

func genToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// digestToken is what the store keeps instead of the refresh token itself.
func digestToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
