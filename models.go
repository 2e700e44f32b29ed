package main

import "github.com/example/userauth/internal/store"

// UserCreate is the registration body.
type UserCreate struct {
	Username string `json:"username" validate:"required,min=1,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginRequest carries the credentials for /users/login. A username field, if
// sent, is ignored.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserOut is the public view of a user. The password hash never leaves the
// service.
type UserOut struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newUserOut(u *store.User) UserOut {
	return UserOut{ID: u.ID, Username: u.Username, Email: u.Email}
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type IntrospectRequest struct {
	Token string `json:"token" validate:"required"`
}

// TokenInfo represents token metadata for introspection
type TokenInfo struct {
	Active    bool   `json:"active"`
	TokenType string `json:"token_type,omitempty"`
	Sub       string `json:"sub,omitempty"`
	UserID    *int64 `json:"user_id,omitempty"`
	ExpiresAt *int64 `json:"exp,omitempty"`
	IssuedAt  *int64 `json:"iat,omitempty"`
	JTI       string `json:"jti,omitempty"`
}
