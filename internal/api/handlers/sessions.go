package handlers

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// SessionName is the cookie holding OAuth round-trip state.
const SessionName = "nexus.sid"

const (
	keyLoginState = "oauthState"
	keyXeroState  = "xeroState"
	keyXeroUserID = "xeroUserId"
)

// NewSessionStore returns the cookie store used for OAuth state.
// Cookies are Secure only in production so plain-HTTP localhost keeps working.
func NewSessionStore(secret string, production bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   60 * 60 * 24,
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// sessionOf returns the request's session. A cookie that fails to decode
// yields a fresh session rather than an error.
func sessionOf(store sessions.Store, r *http.Request) *sessions.Session {
	s, err := store.Get(r, SessionName)
	if err != nil && s == nil {
		s = sessions.NewSession(store, SessionName)
		s.Options = &sessions.Options{Path: "/", HttpOnly: true}
	}
	return s
}
