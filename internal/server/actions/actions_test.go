package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/guard"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repotest"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopNotifier struct{ sent int }

func (n *nopNotifier) Send(context.Context, notify.Message) error {
	n.sent++
	return nil
}

type denyImages struct{}

func (denyImages) Allowed(string, string) bool { return false }

type fixture struct {
	actions  *Actions
	auth     *services.AuthService
	repo     *repotest.Manager
	notifier *nopNotifier
	hasher   *cryptox.Hasher
}

func newFixture(t *testing.T, images ImagePolicy) *fixture {
	t.Helper()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		SecretKey:         "k",
		BaseURL:           "http://gk.test",
		MinPasswordLength: 6,
		VerificationTTL:   time.Hour,
		PasswordResetTTL:  time.Hour,
		EmailDomains:      []string{"gmail.com"},
	}
	repo := repotest.NewManager()
	hasher := cryptox.NewHasher(cryptox.Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 16, SaltLen: 8})
	n := &nopNotifier{}
	auth := services.NewAuthService(db, repo, cfg, sessionstore.New(db, repo, 0), n, services.WithHasher(hasher))
	g := guard.New(auth, access.DefaultPolicy(), nil, nil)

	return &fixture{
		actions:  New(auth, g, images, nil),
		auth:     auth,
		repo:     repo,
		notifier: n,
		hasher:   hasher,
	}
}

func (f *fixture) user(t *testing.T, name, email string, role models.Role, verified bool) *models.User {
	t.Helper()
	h, err := f.hasher.Hash("secret123")
	require.NoError(t, err)
	return f.repo.AddUser(models.User{Name: name, Email: email, Role: role, EmailVerified: verified, PasswordHash: h})
}

func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()
	res := f.actions.SignIn(context.Background(), SignInForm{Email: email, Password: "secret123"})
	require.Nil(t, res.Reply.Error)
	require.NotNil(t, res.Session)
	return res.Session.Token
}

func errorOf(r Result) string {
	if r.Reply.Error == nil {
		return ""
	}
	return *r.Reply.Error
}

func TestSignIn(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)
	f.user(t, "New", "new@gmail.com", models.RoleUser, false)

	assert.Equal(t, MsgEnterEmail, errorOf(f.actions.SignIn(ctx, SignInForm{Password: "x"})))
	assert.Equal(t, MsgEnterPassword, errorOf(f.actions.SignIn(ctx, SignInForm{Email: "ann@gmail.com"})))
	assert.Equal(t, MsgSignInFailed, errorOf(f.actions.SignIn(ctx, SignInForm{Email: "ann@gmail.com", Password: "wrong-one"})))

	res := f.actions.SignIn(ctx, SignInForm{Email: "new@gmail.com", Password: "secret123"})
	assert.Equal(t, "/auth/verify?error=email_not_verified", res.Redirect)
	assert.Nil(t, res.Session)
	assert.Equal(t, 1, f.notifier.sent)

	res = f.actions.SignIn(ctx, SignInForm{Email: "ann@gmail.com", Password: "secret123", UserAgent: "ua"})
	assert.Empty(t, res.Redirect)
	assert.Nil(t, res.Reply.Error)
	require.NotNil(t, res.Session)
	assert.Equal(t, "ua", res.Session.UserAgent)
}

func TestSignIn_StoreErrorIsHidden(t *testing.T) {
	f := newFixture(t, nil)
	f.repo.Err = errors.New("connection reset")

	res := f.actions.SignIn(context.Background(), SignInForm{Email: "ann@gmail.com", Password: "secret123"})
	assert.Equal(t, MsgSignInFailed, errorOf(res))
}

func TestSignUp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)

	assert.Equal(t, MsgEnterName, errorOf(f.actions.SignUp(ctx, SignUpForm{Email: "a@gmail.com", Password: "secret123"})))
	assert.Equal(t, MsgEnterEmail, errorOf(f.actions.SignUp(ctx, SignUpForm{Name: "A", Password: "secret123"})))
	assert.Equal(t, MsgEnterPassword, errorOf(f.actions.SignUp(ctx, SignUpForm{Name: "A", Email: "a@gmail.com"})))

	res := f.actions.SignUp(ctx, SignUpForm{Name: "Eve", Email: "eve@unknown-domain.test", Password: "secret123"})
	assert.Equal(t, common.ErrInvalidDomain.Message, errorOf(res))

	res = f.actions.SignUp(ctx, SignUpForm{Name: "Ann", Email: "ann@gmail.com", Password: "secret123"})
	assert.Equal(t, MsgGeneric, errorOf(res), "taken e-mail is not revealed")

	res = f.actions.SignUp(ctx, SignUpForm{Name: "Bob", Email: "bob@gmail.com", Password: "secret123"})
	assert.Nil(t, res.Reply.Error)
	assert.Nil(t, res.Session, "sign-up does not sign in")
}

func TestSignOut(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)
	tok := f.login(t, "ann@gmail.com")

	res := f.actions.SignOut(ctx, tok)
	assert.Equal(t, common.LoginPath, res.Redirect)
	assert.True(t, res.ClearSession)
	assert.Zero(t, f.repo.SessionCount(u.ID))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)
	tok := f.login(t, "ann@gmail.com")

	assert.Equal(t, MsgEnterCurrent, errorOf(f.actions.ChangePassword(ctx, tok, "", "x")))
	assert.Equal(t, MsgEnterNew, errorOf(f.actions.ChangePassword(ctx, tok, "x", "")))
	assert.Equal(t, MsgUnauthorised, errorOf(f.actions.ChangePassword(ctx, "bogus", "secret123", "newsecret")))
	assert.Equal(t, common.ErrInvalidPassword.Message, errorOf(f.actions.ChangePassword(ctx, tok, "nope", "newsecret")))

	res := f.actions.ChangePassword(ctx, tok, "secret123", "newsecret")
	assert.Nil(t, res.Reply.Error)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	u := f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)
	tok := f.login(t, "ann@gmail.com")

	res := f.actions.UpdateUser(ctx, tok, "ann marie", "https://img.test/a.png")
	require.Nil(t, res.Reply.Error)

	stored, _ := f.repo.User(u.ID)
	assert.Equal(t, "Ann Marie", stored.Name)
	require.NotNil(t, stored.Image)
	assert.Equal(t, "https://img.test/a.png", *stored.Image)

	assert.Equal(t, MsgUnauthorised, errorOf(f.actions.UpdateUser(ctx, "", "X", "")))
}

func TestUpdateUser_ImagePolicy(t *testing.T) {
	f := newFixture(t, denyImages{})
	ctx := context.Background()
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)
	tok := f.login(t, "ann@gmail.com")

	assert.Equal(t, MsgInvalidImage, errorOf(f.actions.UpdateUser(ctx, tok, "Ann", "https://elsewhere.test/x.png")))
	assert.Nil(t, f.actions.UpdateUser(ctx, tok, "Ann", "").Reply.Error)
}

func TestSetRole(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.user(t, "Zed", "zed@gmail.com", models.RoleAdmin, true)
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)
	target := f.user(t, "Ben", "ben@gmail.com", models.RoleUser, true)
	adminTok := f.login(t, "zed@gmail.com")
	userTok := f.login(t, "ann@gmail.com")

	writes := f.repo.Writes()
	assert.Equal(t, MsgForbidden, errorOf(f.actions.SetRole(ctx, userTok, target.ID, "ADMIN")))
	assert.Equal(t, writes, f.repo.Writes(), "denied role change writes nothing")

	assert.Equal(t, MsgUnauthorised, errorOf(f.actions.SetRole(ctx, "", target.ID, "ADMIN")))
	assert.Equal(t, MsgInvalidRole, errorOf(f.actions.SetRole(ctx, adminTok, target.ID, "admin")))

	res := f.actions.SetRole(ctx, adminTok, target.ID, "ADMIN")
	require.Nil(t, res.Reply.Error)
	stored, _ := f.repo.User(target.ID)
	assert.Equal(t, models.RoleAdmin, stored.Role)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := f.user(t, "Zed", "zed@gmail.com", models.RoleAdmin, true)
	other := f.user(t, "Yan", "yan@gmail.com", models.RoleAdmin, true)
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)
	target := f.user(t, "Ben", "ben@gmail.com", models.RoleUser, true)
	adminTok := f.login(t, "zed@gmail.com")
	userTok := f.login(t, "ann@gmail.com")

	assert.Equal(t, MsgUnauthorised, errorOf(f.actions.DeleteUser(ctx, "", target.ID)))
	assert.Equal(t, MsgForbidden, errorOf(f.actions.DeleteUser(ctx, userTok, target.ID)))

	res := f.actions.DeleteUser(ctx, adminTok, other.ID)
	assert.Equal(t, common.ErrUserNotFound.Message, errorOf(res), "admins are never deleted")
	_, ok := f.repo.User(other.ID)
	assert.True(t, ok)

	res = f.actions.DeleteUser(ctx, adminTok, target.ID)
	assert.Nil(t, res.Reply.Error)
	assert.Empty(t, res.Redirect)
	assert.False(t, res.ClearSession)
	assert.Equal(t, 1, f.repo.SessionCount(admin.ID), "caller keeps their session")

	res = f.actions.DeleteUser(ctx, adminTok, admin.ID)
	assert.Equal(t, common.ErrUserNotFound.Message, errorOf(res), "self-delete of an admin is refused by the store")
}

func TestDeleteUser_SelfAfterDemotion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := f.user(t, "Zed", "zed@gmail.com", models.RoleAdmin, true)
	token := f.login(t, "zed@gmail.com")

	// A concurrent set-role demotes the caller between the guard check and
	// the delete.
	f.repo.BeforeDeleteIfRole = func() {
		_, err := f.repo.Users(nil).SetRole(ctx, admin.ID, models.RoleUser)
		require.NoError(t, err)
	}

	res := f.actions.DeleteUser(ctx, token, admin.ID)
	assert.Nil(t, res.Reply.Error)
	assert.Equal(t, common.LoginPath, res.Redirect)
	assert.True(t, res.ClearSession)
	assert.Nil(t, res.Session)

	_, ok := f.repo.User(admin.ID)
	assert.False(t, ok)
	sw, err := f.auth.GetSession(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sw, "old token no longer resolves")
}

func TestPasswordResetActions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser, true)

	assert.Equal(t, MsgEnterEmail, errorOf(f.actions.RequestPasswordReset(ctx, "")))
	res := f.actions.RequestPasswordReset(ctx, "ann@gmail.com")
	assert.Equal(t, common.ResetSuccessPath, res.Redirect)
	assert.Equal(t, 1, f.notifier.sent)

	assert.Equal(t, MsgMissingResetTok, errorOf(f.actions.ResetPassword(ctx, "", "newsecret")))
	assert.Equal(t, MsgEnterNew, errorOf(f.actions.ResetPassword(ctx, "tok", "")))
	assert.Equal(t, common.ErrPasswordTooShort.Message, errorOf(f.actions.ResetPassword(ctx, "tok", "abc")))
}

func TestSendVerificationEmailAction(t *testing.T) {
	f := newFixture(t, nil)
	f.user(t, "New", "new@gmail.com", models.RoleUser, false)

	assert.Equal(t, MsgEnterEmail, errorOf(f.actions.SendVerificationEmail(context.Background(), "")))
	assert.Nil(t, f.actions.SendVerificationEmail(context.Background(), "new@gmail.com").Reply.Error)
	assert.Equal(t, 1, f.notifier.sent)
}

func TestFail_Mapping(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.Equal(t, MsgUnauthorised, *f.actions.fail(ctx, common.ErrorUnauthorized).Error)
	assert.Equal(t, MsgForbidden, *f.actions.fail(ctx, common.ErrorForbidden).Error)
	assert.Equal(t, "Invalid password", *f.actions.fail(ctx, common.ErrInvalidPassword).Error)
	assert.Equal(t, MsgGeneric, *f.actions.fail(ctx, common.NewAPIError(500, common.CodeUnknown, "stack trace here")).Error)
	assert.Equal(t, MsgGeneric, *f.actions.fail(ctx, common.NewAPIError(400, "SOMETHING_NEW", "raw")).Error)
	assert.Equal(t, MsgInternal, *f.actions.fail(ctx, errors.New("pq: relation does not exist")).Error)
}
