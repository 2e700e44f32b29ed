package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/userauth/internal/store"
)

const maxBodyBytes = 1 << 20

// decode reads and validates a JSON body into dst. It writes the 400 itself
// and reports whether the handler should continue.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

func (a *App) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Authentication API!"})
}

func (a *App) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) HandleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in UserCreate
	if !a.decode(w, r, &in) {
		return
	}
	u, err := a.auth.Register(r.Context(), strings.TrimSpace(in.Username), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserOut(u))
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginRequest
	if !a.decode(w, r, &in) {
		return
	}
	pair, err := a.auth.Login(r.Context(), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
		RefreshToken: pair.RefreshToken,
	})
}

// HandleMe returns the profile of the user the bearer token was issued to.
func (a *App) HandleMe(w http.ResponseWriter, r *http.Request, u *store.User) {
	writeJSON(w, http.StatusOK, newUserOut(u))
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var in RefreshRequest
	if !a.decode(w, r, &in) {
		return
	}
	pair, err := a.auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int64(pair.ExpiresIn.Seconds()),
		RefreshToken: pair.RefreshToken,
	})
}

func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var in RefreshRequest
	if !a.decode(w, r, &in) {
		return
	}
	if err := a.auth.Logout(r.Context(), in.RefreshToken); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
