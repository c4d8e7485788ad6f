// Package gate is the request gate: a cheap middleware that redirects on
// the mere presence or absence of a session cookie. It never validates the
// cookie. Pages and actions run the authoritative check themselves.
package gate

import (
	"net/http"
	"slices"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessioncookie"
)

// Decision is what the gate does with a request.
type Decision string

const (
	Pass            Decision = "pass"
	RedirectLogin   Decision = "redirect_login"
	RedirectLanding Decision = "redirect_landing"
	Skip            Decision = "skip"
)

// Rules configures the gate.
type Rules struct {
	// Protected lists paths, matched exactly, that need a session cookie.
	Protected []string
	// AuthPrefix starts every sign-in/sign-up route.
	AuthPrefix string
	// Excluded lists path prefixes the gate never looks at.
	Excluded []string

	LoginPath   string
	LandingPath string
}

func DefaultRules() Rules {
	return Rules{
		Protected:   []string{common.ProfilePath, common.AdminPath},
		AuthPrefix:  "/auth",
		Excluded:    []string{"/api", "/static", "/favicon.ico", "/healthz", "/metrics"},
		LoginPath:   common.LoginPath,
		LandingPath: common.ProfilePath,
	}
}

// hasPrefix matches prefix as a whole path segment: "/api" matches "/api"
// and "/api/x" but not "/apiary".
func hasPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || strings.HasSuffix(prefix, "/") || path[len(prefix)] == '/'
}

// Decide applies the decision table to path.
func (r Rules) Decide(path string, hasCookie bool) Decision {
	for _, p := range r.Excluded {
		if hasPrefix(path, p) {
			return Skip
		}
	}

	switch {
	case slices.Contains(r.Protected, path):
		if !hasCookie {
			return RedirectLogin
		}
	case r.AuthPrefix != "" && hasPrefix(path, r.AuthPrefix):
		if hasCookie {
			return RedirectLanding
		}
	}
	return Pass
}

func (r Rules) location(d Decision) string {
	if d == RedirectLogin {
		return r.LoginPath
	}
	return r.LandingPath
}

// Middleware enforces rules ahead of next.
func Middleware(rules Rules, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			d := rules.Decide(req.URL.Path, sessioncookie.Present(req))
			m.GateDecision(string(d))

			switch d {
			case RedirectLogin, RedirectLanding:
				http.Redirect(w, req, rules.location(d), http.StatusTemporaryRedirect)
			default:
				next.ServeHTTP(w, req)
			}
		})
	}
}
