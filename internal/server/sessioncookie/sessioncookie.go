// Package sessioncookie centralizes session cookie behavior.
package sessioncookie

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// Name is the session cookie name. SecureName is used instead when the
// cookie is issued with the Secure attribute.
const (
	Name       = "gatekeeper.session_token"
	SecureName = "__Secure-" + Name
)

// Read returns the trimmed session cookie value when present. The secure
// variant wins when both are sent.
func Read(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, name := range []string{SecureName, Name} {
		c, err := r.Cookie(name)
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, true
		}
	}
	return "", false
}

// Present reports whether a non-empty session cookie exists. The value is
// not checked in any way.
func Present(r *http.Request) bool {
	_, ok := Read(r)
	return ok
}

func name(secure bool) string {
	if secure {
		return SecureName
	}
	return Name
}

// Write sets the session cookie, expiring together with the session.
func Write(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name(secure),
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func Clear(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name(secure),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// StateName is the cookie that binds an OAuth state to the browser which
// started the flow. It is only sent back to the provider callback.
const (
	StateName       = "gatekeeper.oauth_state"
	SecureStateName = "__Secure-" + StateName
	statePath       = "/api/auth/callback"
)

func stateName(secure bool) string {
	if secure {
		return SecureStateName
	}
	return StateName
}

// WriteState sets the OAuth state cookie.
func WriteState(w http.ResponseWriter, state string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateName(secure),
		Value:    state,
		Path:     statePath,
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// StateMatches reports whether the request carries an OAuth state cookie
// equal to state. An empty state never matches.
func StateMatches(r *http.Request, state string) bool {
	if r == nil || state == "" {
		return false
	}
	for _, name := range []string{SecureStateName, StateName} {
		c, err := r.Cookie(name)
		if err != nil {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) == 1 {
			return true
		}
	}
	return false
}

// ClearState expires the OAuth state cookie.
func ClearState(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateName(secure),
		Value:    "",
		Path:     statePath,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
