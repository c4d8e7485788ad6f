package actions

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
)

func (a *Actions) ChangePassword(ctx context.Context, token, current, next string) Result {
	return a.run(ctx, "change-password", func(ctx context.Context) Result {
		if current == "" {
			return reply(Failed(MsgEnterCurrent))
		}
		if next == "" {
			return reply(Failed(MsgEnterNew))
		}

		sw, res := a.session(ctx, token)
		if res != nil {
			return *res
		}
		if err := a.guard.Authorize(sw, access.PermChangePassword); err != nil {
			return reply(a.fail(ctx, err))
		}

		if err := a.auth.ChangePassword(ctx, sw, current, next); err != nil {
			return reply(a.fail(ctx, err))
		}
		return reply(OK())
	})
}

// UpdateUser sets the display name and, when image is non-empty, the
// avatar URL. An empty image clears it.
func (a *Actions) UpdateUser(ctx context.Context, token, name, image string) Result {
	return a.run(ctx, "update-user", func(ctx context.Context) Result {
		sw, res := a.session(ctx, token)
		if res != nil {
			return *res
		}
		if err := a.guard.Authorize(sw, access.PermUpdateAccount); err != nil {
			return reply(a.fail(ctx, err))
		}

		var img *string
		if image != "" {
			if a.images != nil && !a.images.Allowed(sw.User.ID, image) {
				return reply(Failed(MsgInvalidImage))
			}
			img = &image
		}

		if _, err := a.auth.UpdateUser(ctx, sw, name, img); err != nil {
			return reply(a.fail(ctx, err))
		}
		return reply(OK())
	})
}
