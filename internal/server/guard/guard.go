// Package guard is the authoritative per-operation check run inside page
// handlers and server actions. It re-resolves the session from the store
// on every call and re-evaluates permissions right before a mutation.
package guard

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Kind tags an Outcome.
type Kind int

const (
	KindContinue Kind = iota
	KindRedirect
	KindFail
)

func (k Kind) String() string {
	switch k {
	case KindContinue:
		return "continue"
	case KindRedirect:
		return "redirect"
	default:
		return "fail"
	}
}

// Outcome is the result of a guard check: continue with the resolved
// session, transfer control to Location, or fail with Err.
type Outcome struct {
	Kind     Kind
	Session  *models.SessionWithUser
	Location string
	Err      error
}

func Continue(sw *models.SessionWithUser) Outcome {
	return Outcome{Kind: KindContinue, Session: sw}
}

func Redirect(location string) Outcome {
	return Outcome{Kind: KindRedirect, Location: location}
}

func Fail(err error) Outcome {
	return Outcome{Kind: KindFail, Err: err}
}

func (o Outcome) OK() bool { return o.Kind == KindContinue }

// SessionResolver looks a session token up; (nil, nil) means no valid
// session.
type SessionResolver interface {
	GetSession(ctx context.Context, token string) (*models.SessionWithUser, error)
}

type Guard struct {
	sessions SessionResolver
	policy   *access.Policy
	metrics  *metrics.Metrics
	logger   logging.Logger
}

func New(sessions SessionResolver, policy *access.Policy, m *metrics.Metrics, l logging.Logger) *Guard {
	if l == nil {
		l = logging.Nop{}
	}
	return &Guard{sessions: sessions, policy: policy, metrics: m, logger: l.With("module", "guard")}
}

func (g *Guard) resolve(ctx context.Context, token string) (*models.SessionWithUser, error) {
	sw, err := g.sessions.GetSession(ctx, token)
	if err != nil {
		g.logger.Error(ctx, "resolve session", "error", err)
		return nil, err
	}
	return sw, nil
}

// Page checks a page render. No session redirects to the login page. When
// requiredRole is set and differs from the user's role the outcome fails
// with common.ErrorForbidden, which pages render as a forbidden state.
func (g *Guard) Page(ctx context.Context, token string, requiredRole models.Role) Outcome {
	sw, err := g.resolve(ctx, token)
	switch {
	case err != nil:
		g.metrics.GuardOutcome("page", "error")
		return Fail(err)
	case sw == nil:
		g.metrics.GuardOutcome("page", "redirect")
		return Redirect(common.LoginPath)
	case requiredRole != "" && sw.User.Role != requiredRole:
		g.metrics.GuardOutcome("page", "forbidden")
		return Fail(common.ErrorForbidden)
	}
	g.metrics.GuardOutcome("page", "continue")
	return Continue(sw)
}

// Action checks a mutating action. No session fails with
// common.ErrorUnauthorized.
func (g *Guard) Action(ctx context.Context, token string) Outcome {
	sw, err := g.resolve(ctx, token)
	switch {
	case err != nil:
		g.metrics.GuardOutcome("action", "error")
		return Fail(err)
	case sw == nil:
		g.metrics.GuardOutcome("action", "unauthorised")
		return Fail(common.ErrorUnauthorized)
	}
	g.metrics.GuardOutcome("action", "continue")
	return Continue(sw)
}

// RequireRole fails with common.ErrorForbidden unless the session user has
// role.
func (g *Guard) RequireRole(sw *models.SessionWithUser, role models.Role) error {
	if sw == nil || sw.User.Role != role {
		g.metrics.GuardOutcome("role", "forbidden")
		return common.ErrorForbidden
	}
	return nil
}

// Authorize evaluates req against the session user's role. Callers run it
// immediately before the write it protects, even after RequireRole.
func (g *Guard) Authorize(sw *models.SessionWithUser, req access.Request) error {
	if sw == nil {
		g.metrics.GuardOutcome("permission", "unauthorised")
		return common.ErrorUnauthorized
	}
	if !g.policy.HasPermission(sw.User.Role, req) {
		g.metrics.GuardOutcome("permission", "forbidden")
		return common.ErrorForbidden
	}
	g.metrics.GuardOutcome("permission", "granted")
	return nil
}

// IsForbidden reports whether err is an authorization denial.
func IsForbidden(err error) bool {
	return errors.Is(err, common.ErrorForbidden)
}
