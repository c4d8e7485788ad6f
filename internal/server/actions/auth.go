package actions

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

type SignInForm struct {
	Email     string
	Password  string
	UserAgent string
}

// SignIn opens a session. An unverified e-mail is sent to the verification
// page instead of getting an inline error; other failures share one
// message.
func (a *Actions) SignIn(ctx context.Context, f SignInForm) Result {
	return a.run(ctx, "sign-in", func(ctx context.Context) Result {
		if f.Email == "" {
			return reply(Failed(MsgEnterEmail))
		}
		if f.Password == "" {
			return reply(Failed(MsgEnterPassword))
		}

		sw, err := a.auth.SignInEmail(ctx, f.Email, f.Password, f.UserAgent)
		if err != nil {
			if errors.Is(err, common.ErrEmailNotVerified) {
				return redirect(verifyPath("email_not_verified"))
			}
			if _, ok := common.AsAPIError(err); !ok {
				a.fail(ctx, err)
			}
			return reply(Failed(MsgSignInFailed))
		}
		return Result{Session: &sw.Session}
	})
}

type SignUpForm struct {
	Name     string
	Email    string
	Password string
}

// SignUp registers a user. An e-mail already in use gets the generic
// message so the form does not reveal registered addresses.
func (a *Actions) SignUp(ctx context.Context, f SignUpForm) Result {
	return a.run(ctx, "sign-up", func(ctx context.Context) Result {
		switch {
		case strings.TrimSpace(f.Name) == "":
			return reply(Failed(MsgEnterName))
		case f.Email == "":
			return reply(Failed(MsgEnterEmail))
		case f.Password == "":
			return reply(Failed(MsgEnterPassword))
		}

		if _, err := a.auth.SignUpEmail(ctx, f.Name, f.Email, f.Password); err != nil {
			if errors.Is(err, common.ErrUserExists) {
				return reply(Failed(MsgGeneric))
			}
			return reply(a.fail(ctx, err))
		}
		return reply(OK())
	})
}

// SignOut drops the session and sends the client to the login page.
func (a *Actions) SignOut(ctx context.Context, token string) Result {
	return a.run(ctx, "sign-out", func(ctx context.Context) Result {
		if err := a.auth.SignOut(ctx, token); err != nil {
			return reply(a.fail(ctx, err))
		}
		return Result{Redirect: common.LoginPath, ClearSession: true}
	})
}

func (a *Actions) RequestPasswordReset(ctx context.Context, email string) Result {
	return a.run(ctx, "request-password-reset", func(ctx context.Context) Result {
		if email == "" {
			return reply(Failed(MsgEnterEmail))
		}
		if err := a.auth.RequestPasswordReset(ctx, email); err != nil {
			return reply(a.fail(ctx, err))
		}
		return redirect(common.ResetSuccessPath)
	})
}

func (a *Actions) ResetPassword(ctx context.Context, token, newPassword string) Result {
	return a.run(ctx, "reset-password", func(ctx context.Context) Result {
		if token == "" {
			return reply(Failed(MsgMissingResetTok))
		}
		if newPassword == "" {
			return reply(Failed(MsgEnterNew))
		}
		if err := a.auth.ResetPassword(ctx, token, newPassword); err != nil {
			return reply(a.fail(ctx, err))
		}
		return redirect(common.LoginPath)
	})
}

func (a *Actions) SendVerificationEmail(ctx context.Context, email string) Result {
	return a.run(ctx, "send-verification-email", func(ctx context.Context) Result {
		if email == "" {
			return reply(Failed(MsgEnterEmail))
		}
		if err := a.auth.SendVerificationEmail(ctx, email); err != nil {
			return reply(a.fail(ctx, err))
		}
		return reply(OK())
	})
}
