package auth

import (
	"errors"
	"fmt"
)

var (
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
)

// ConflictError names the field that collided at registration.
// errors.Is(err, ErrConflict) holds for it.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	switch e.Field {
	case "email":
		return "email already registered"
	case "username":
		return "username already taken"
	}
	return "user already exists"
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func unauthenticated(reason error) error {
	return fmt.Errorf("%w: %w", ErrUnauthenticated, reason)
}

// Refresh session failures. Each also matches ErrUnauthenticated.
var (
	ErrSessionInvalid  = &sessionError{"refresh token not recognised"}
	ErrSessionExpired  = &sessionError{"refresh token expired"}
	ErrSessionReused   = &sessionError{"refresh token reuse detected"}
	ErrSessionDisabled = errors.New("auth: refresh sessions are disabled")
)

type sessionError struct{ msg string }

func (e *sessionError) Error() string        { return "auth: " + e.msg }
func (e *sessionError) Is(target error) bool { return target == e || target == ErrUnauthenticated }
