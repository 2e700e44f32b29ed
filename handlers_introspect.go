package main

import (
	"net/http"
)

// HandleTokenIntrospect implements OAuth 2.0 token introspection (RFC 7662).
// Inactive or unknown tokens yield {"active": false} with a 200.
// POST /users/introspect
func (a *App) HandleTokenIntrospect(w http.ResponseWriter, r *http.Request) {
	var req IntrospectRequest
	if !a.decode(w, r, &req) {
		return
	}

	res, err := a.auth.Introspect(r.Context(), req.Token)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	info := TokenInfo{Active: res.Active}
	if res.Active {
		info.TokenType = res.Kind
		info.Sub = res.Subject
		info.JTI = res.ID
		if res.UserID != 0 {
			uid := res.UserID
			info.UserID = &uid
		}
		if !res.ExpiresAt.IsZero() {
			exp := res.ExpiresAt.Unix()
			info.ExpiresAt = &exp
		}
		if !res.IssuedAt.IsZero() {
			iat := res.IssuedAt.Unix()
			info.IssuedAt = &iat
		}
	}
	writeJSON(w, http.StatusOK, info)
}
