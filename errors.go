package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/userauth/internal/auth"
	"github.com/example/userauth/internal/logging"
	"github.com/example/userauth/internal/password"
	"github.com/example/userauth/internal/token"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

func writeErrorDetails(w http.ResponseWriter, status int, code, message, details string) {
	writeJSON(w, status, APIError{Code: code, Message: message, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("write json", logging.Err(err))
	}
}

// writeUnauthorized also sets the challenge header clients expect on 401.
func writeUnauthorized(w http.ResponseWriter, code, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, code, message)
}

// writeServiceError maps errors from the auth service onto HTTP responses.
// Anything unrecognised is logged and reported as a 500 without detail.
func (a *App) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *auth.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "USER_EXISTS", conflict.Error())
	case errors.Is(err, password.ErrTooLong):
		writeErrorDetails(w, http.StatusBadRequest, "INVALID_REQUEST", "Request validation failed", "password: max 72 bytes")
	case errors.Is(err, password.ErrEmpty):
		writeErrorDetails(w, http.StatusBadRequest, "INVALID_REQUEST", "Request validation failed", "password: required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, auth.ErrSessionReused):
		writeUnauthorized(w, "TOKEN_REUSE_DETECTED", "Token reuse detected - all tokens revoked")
	case errors.Is(err, auth.ErrSessionExpired):
		writeUnauthorized(w, "TOKEN_EXPIRED", "Refresh token has expired")
	case errors.Is(err, auth.ErrSessionInvalid):
		writeUnauthorized(w, "INVALID_TOKEN", "Invalid refresh token")
	case errors.Is(err, auth.ErrSessionDisabled):
		writeError(w, http.StatusNotFound, "NOT_SUPPORTED", "Refresh tokens are disabled")
	case errors.Is(err, token.ErrExpired):
		writeUnauthorized(w, "TOKEN_EXPIRED", "Token has expired")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthorized(w, "UNAUTHORIZED", "Could not validate credentials")
	default:
		a.log.Error("request failed",
			slog.String("request_id", requestID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logging.Err(err),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

// writeValidationError reports the first failing field of a request body.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+": "+fe.Tag())
	}
	writeErrorDetails(w, http.StatusBadRequest, "INVALID_REQUEST", "Request validation failed", strings.Join(fields, ", "))
}
