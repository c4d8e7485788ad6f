package actions

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

func (a *Actions) SetRole(ctx context.Context, token, userID, role string) Result {
	return a.run(ctx, "set-role", func(ctx context.Context) Result {
		sw, res := a.session(ctx, token)
		if res != nil {
			return *res
		}
		if err := a.guard.Authorize(sw, access.PermSetRole); err != nil {
			return reply(a.fail(ctx, err))
		}

		r, ok := models.ParseRole(role)
		if !ok {
			return reply(Failed(MsgInvalidRole))
		}
		if userID == "" {
			return reply(Failed(MsgMissingUserID))
		}

		if _, err := a.auth.SetRole(ctx, sw, userID, r); err != nil {
			return reply(a.fail(ctx, err))
		}
		return reply(OK())
	})
}

// DeleteUser removes a USER-role account. The caller must be ADMIN and hold
// the delete permission; the store only deletes when the target is still a
// USER. Deleting oneself ends the session and redirects to login.
func (a *Actions) DeleteUser(ctx context.Context, token, userID string) Result {
	return a.run(ctx, "delete-user", func(ctx context.Context) Result {
		sw, res := a.session(ctx, token)
		if res != nil {
			return *res
		}
		if err := a.guard.RequireRole(sw, models.RoleAdmin); err != nil {
			return reply(a.fail(ctx, err))
		}
		if userID == "" {
			return reply(Failed(MsgMissingUserID))
		}
		if err := a.guard.Authorize(sw, access.PermDeleteUser); err != nil {
			return reply(a.fail(ctx, err))
		}

		self, err := a.auth.DeleteUser(ctx, sw, userID)
		if err != nil {
			return reply(a.fail(ctx, err))
		}
		if self {
			return Result{Redirect: common.LoginPath, ClearSession: true}
		}
		return reply(OK())
	})
}
