// Package common contains shared constants and sentinel errors used across
// Gatekeeper components.
package common

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "gatekeeper.session_token"

// Route paths shared by the request gate, the guard and the actions.
const (
	LoginPath        = "/auth/login"
	ProfilePath      = "/profile"
	AdminPath        = "/admin/dashboard"
	VerifyEmailPath  = "/auth/verify"
	LoginErrorPath   = "/auth/login/error"
	ResetSuccessPath = "/auth/forgot-password/success"
)
