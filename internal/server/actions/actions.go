// Package actions implements the mutating server actions. Every action
// answers with a Reply ({"error": string|null}) or transfers control with
// a redirect; a redirect never travels through the error field.
package actions

import (
	"context"
	"errors"
	"net/url"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/guard"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dmitrijs2005/gatekeeper/internal/server/actions"

// User-facing messages.
const (
	MsgUnauthorised    = "Unauthorised"
	MsgForbidden       = "FORBIDDEN"
	MsgInternal        = "Internal Server Error"
	MsgGeneric         = "Oops! Something went wrong. Please try again."
	MsgSignInFailed    = "Oopsie! Something went wrong while logging in."
	MsgInvalidRole     = "Invalid role"
	MsgInvalidImage    = "Invalid image"
	MsgEnterName       = "Please enter your name"
	MsgEnterEmail      = "Please enter your email"
	MsgEnterPassword   = "Please enter your password"
	MsgEnterCurrent    = "Please enter your current password"
	MsgEnterNew        = "Please enter your new password"
	MsgMissingUserID   = "Please select a user"
	MsgMissingResetTok = "Missing reset token"
)

// Reply is the action result shape. A nil Error means success.
type Reply struct {
	Error *string `json:"error"`
}

func OK() Reply { return Reply{} }

func Failed(msg string) Reply { return Reply{Error: &msg} }

// Result is what an action produced. When Redirect is set the transport
// sends the client there and Reply is not written.
type Result struct {
	Reply    Reply
	Redirect string
	// Session, when set, is issued as the new session cookie.
	Session *models.Session
	// ClearSession expires the session cookie.
	ClearSession bool
}

func reply(r Reply) Result { return Result{Reply: r} }

func redirect(to string) Result { return Result{Redirect: to} }

// ImagePolicy decides whether a user may use an image URL as avatar.
type ImagePolicy interface {
	Allowed(userID, imageURL string) bool
}

type Actions struct {
	auth   *services.AuthService
	guard  *guard.Guard
	images ImagePolicy
	logger logging.Logger
	tracer trace.Tracer
}

// New builds the actions. images may be nil, in which case any image URL
// is accepted.
func New(auth *services.AuthService, g *guard.Guard, images ImagePolicy, l logging.Logger) *Actions {
	if l == nil {
		l = logging.Nop{}
	}
	return &Actions{
		auth:   auth,
		guard:  g,
		images: images,
		logger: l.With("module", "actions"),
		tracer: otel.Tracer(tracerName),
	}
}

func (a *Actions) run(ctx context.Context, name string, fn func(ctx context.Context) Result) Result {
	ctx, span := a.tracer.Start(ctx, "action."+name)
	defer span.End()

	res := fn(ctx)

	outcome := "ok"
	switch {
	case res.Redirect != "":
		outcome = "redirect"
		span.SetAttributes(attribute.String("action.redirect", res.Redirect))
	case res.Reply.Error != nil:
		outcome = "error"
	}
	span.SetAttributes(attribute.String("action.outcome", outcome))
	return res
}

// knownCodes are the provider codes whose messages may reach the client.
var knownCodes = map[common.ErrorCode]struct{}{
	common.CodeEmailNotVerified:       {},
	common.CodeUserAlreadyExists:      {},
	common.CodeInvalidEmailOrPassword: {},
	common.CodeInvalidPassword:        {},
	common.CodePasswordTooShort:       {},
	common.CodeInvalidEmailDomain:     {},
	common.CodeInvalidToken:           {},
	common.CodeTokenExpired:           {},
	common.CodeAccountNotLinked:       {},
	common.CodeInvalidEmail:           {},
	common.CodeInvalidName:            {},
	common.CodeUserNotFound:           {},
	common.CodeProviderNotFound:       {},
}

// fail converts err into a Reply. Authorization errors keep their class;
// provider errors show their message; anything else is logged and hidden.
func (a *Actions) fail(ctx context.Context, err error) Reply {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)

	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		return Failed(MsgUnauthorised)
	case errors.Is(err, common.ErrorForbidden):
		return Failed(MsgForbidden)
	}

	if apiErr, ok := common.AsAPIError(err); ok {
		if _, known := knownCodes[apiErr.Code]; !known {
			return Failed(MsgGeneric)
		}
		return Failed(apiErr.Message)
	}

	span.SetStatus(codes.Error, err.Error())
	a.logger.Error(ctx, "action failed", "error", err)
	return Failed(MsgInternal)
}

// session runs the action guard. A failed outcome is returned as a Result.
func (a *Actions) session(ctx context.Context, token string) (*models.SessionWithUser, *Result) {
	o := a.guard.Action(ctx, token)
	if !o.OK() {
		res := reply(a.fail(ctx, o.Err))
		return nil, &res
	}
	return o.Session, nil
}

func verifyPath(code string) string {
	return common.VerifyEmailPath + "?" + url.Values{"error": {code}}.Encode()
}
