package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
	"github.com/dmitrijs2005/gatekeeper/internal/server/actions"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/gate"
	"github.com/dmitrijs2005/gatekeeper/internal/server/guard"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repotest"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessioncookie"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type inbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *inbox) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *inbox) lastToken(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.msgs)
	u, err := url.Parse(n.msgs[len(n.msgs)-1].Link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type fixture struct {
	handler http.Handler
	mock    sqlmock.Sqlmock
	repo    *repotest.Manager
	hasher  *cryptox.Hasher
	inbox   *inbox
	google  *services.OAuthProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
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
	n := &inbox{}
	m := metrics.New()
	google := services.GoogleProvider("cid", "secret", "http://gk.test/api/auth/callback/google")

	auth := services.NewAuthService(db, repo, cfg, sessionstore.New(db, repo, 0), n,
		services.WithHasher(hasher),
		services.WithMetrics(m),
		services.WithOAuthProviders(google),
	)
	g := guard.New(auth, access.DefaultPolicy(), m, nil)

	h := NewRouter(Deps{
		Auth:         auth,
		Guard:        g,
		Actions:      actions.New(auth, g, nil, nil),
		Metrics:      m,
		GateRules:    gate.DefaultRules(),
		EmailDomains: cfg.EmailDomains,
	})
	return &fixture{handler: h, mock: mock, repo: repo, hasher: hasher, inbox: n, google: google}
}

func (f *fixture) user(t *testing.T, name, email string, role models.Role) *models.User {
	t.Helper()
	h, err := f.hasher.Hash("secret123")
	require.NoError(t, err)
	return f.repo.AddUser(models.User{Name: name, Email: email, Role: role, EmailVerified: true, PasswordHash: h})
}

func (f *fixture) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.AddCookie(&http.Cookie{Name: sessioncookie.Name, Value: token})
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(path, token string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, path, nil), token)
}

func (f *fixture) post(path, token string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req, token)
}

func (f *fixture) postJSON(path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(req, token)
}

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", name)
	return nil
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	return responseCookie(t, rec, sessioncookie.Name)
}

// useFakeGoogle points the Google provider at a local token and user-info
// server that accepts code "good-code".
func (f *fixture) useFakeGoogle(t *testing.T, profile map[string]any) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	f.google.Config.Endpoint = oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	f.google.UserInfoURL = srv.URL + "/userinfo"
}

// startOAuth begins a Google login and returns the issued state and the
// state cookie set on the browser.
func (f *fixture) startOAuth(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	rec := f.get("/api/auth/oauth/google", "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state, responseCookie(t, rec, sessioncookie.StateName)
}

func (f *fixture) oauthCallback(state string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback/google?code=good-code&state="+url.QueryEscape(state), nil)
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return f.do(req, "")
}

func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()
	rec := f.post("/actions/sign-in", "", url.Values{"email": {email}, "password": {"secret123"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec).Value
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.get("/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGate_ProtectedWithoutCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/admin/dashboard", "")
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestProfile_ForgedCookieRedirectsAtGuard(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/profile", "forged")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
}

func TestSignInThenProfile(t *testing.T) {
	f := newFixture(t)
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser)

	rec := f.post("/actions/sign-in", "", url.Values{"email": {"ann@gmail.com"}, "password": {"wrong-one"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"`+actions.MsgSignInFailed+`"}`, rec.Body.String())

	token := f.login(t, "ann@gmail.com")

	rec = f.get("/profile", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, false, body["isAdmin"])
	assert.Equal(t, false, body["fullPostAccess"])
	assert.Equal(t, "ann@gmail.com", body["user"].(map[string]any)["email"])
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec = f.get("/auth/login", token)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))
}

func TestSignIn_UnverifiedRedirects(t *testing.T) {
	f := newFixture(t)
	h, err := f.hasher.Hash("secret123")
	require.NoError(t, err)
	f.repo.AddUser(models.User{Name: "New", Email: "new@gmail.com", Role: models.RoleUser, PasswordHash: h})

	rec := f.post("/actions/sign-in", "", url.Values{"email": {"new@gmail.com"}, "password": {"secret123"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/verify?error=email_not_verified", rec.Header().Get("Location"))
	assert.Empty(t, rec.Result().Cookies())
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	f.user(t, "Zed", "zed@gmail.com", models.RoleAdmin)
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser)

	rec := f.get("/admin/dashboard", f.login(t, "ann@gmail.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"status":"FORBIDDEN"}`, rec.Body.String())

	rec = f.get("/admin/dashboard", f.login(t, "zed@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var v dashboardView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.True(t, v.CanSetRole)
	require.Len(t, v.Users, 2)
	assert.Equal(t, "Zed", v.Users[0].Name)
	assert.False(t, v.Users[0].Deletable)
	assert.Equal(t, "Ann", v.Users[1].Name)
	assert.True(t, v.Users[1].Deletable)
}

func TestDeleteUserAction(t *testing.T) {
	f := newFixture(t)
	f.user(t, "Zed", "zed@gmail.com", models.RoleAdmin)
	ann := f.user(t, "Ann", "ann@gmail.com", models.RoleUser)
	annToken := f.login(t, "ann@gmail.com")

	rec := f.post("/actions/delete-user", annToken, url.Values{"userId": {ann.ID}})
	assert.JSONEq(t, `{"error":"`+actions.MsgForbidden+`"}`, rec.Body.String())

	rec = f.post("/actions/delete-user", f.login(t, "zed@gmail.com"), url.Values{"userId": {ann.ID}})
	assert.JSONEq(t, `{"error":null}`, rec.Body.String())

	_, ok := f.repo.User(ann.ID)
	assert.False(t, ok)
	assert.Equal(t, http.StatusSeeOther, f.get("/profile", annToken).Code)
}

func TestDeleteUserAction_SelfRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	zed := f.user(t, "Zed", "zed@gmail.com", models.RoleAdmin)
	token := f.login(t, "zed@gmail.com")
	f.repo.BeforeDeleteIfRole = func() {
		_, err := f.repo.Users(nil).SetRole(context.Background(), zed.ID, models.RoleUser)
		require.NoError(t, err)
	}

	rec := f.post("/actions/delete-user", token, url.Values{"userId": {zed.ID}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
	assert.Less(t, sessionCookie(t, rec).MaxAge, 0)

	rec = f.get("/api/auth/session", token)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestSignOut(t *testing.T) {
	f := newFixture(t)
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser)
	token := f.login(t, "ann@gmail.com")

	rec := f.post("/actions/sign-out", token, nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))
	assert.Less(t, sessionCookie(t, rec).MaxAge, 0)

	rec = f.get("/api/auth/session", token)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestSignUpAndVerifyEmail(t *testing.T) {
	f := newFixture(t)

	rec := f.post("/actions/sign-up", "", url.Values{"name": {"Ann"}, "email": {"ann@gmail.com"}, "password": {"secret123"}})
	assert.JSONEq(t, `{"error":null}`, rec.Body.String())

	rec = f.get("/api/auth/verify-email?token=garbage", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/verify?error=invalid_token", rec.Header().Get("Location"))

	rec = f.get("/api/auth/verify-email?token="+url.QueryEscape(f.inbox.lastToken(t)), "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))

	rec = f.get("/profile", sessionCookie(t, rec).Value)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyPage(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/auth/verify", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))

	tests := map[string]string{
		"token_expired":      "Your token is invalid or expired. Please request a new one.",
		"invalid_token":      "Your token is invalid or expired. Please request a new one.",
		"email_not_verified": "Please verify your email, or request a new verification below",
		"weird":              "Oops! Something went wrong. Please try again.",
	}
	for code, msg := range tests {
		t.Run(code, func(t *testing.T) {
			rec := f.get("/auth/verify?error="+code, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, msg, decode(t, rec)["message"])
		})
	}
}

func TestResetPasswordPage(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/auth/reset-password", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login", rec.Header().Get("Location"))

	rec = f.get("/auth/reset-password?token=abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", decode(t, rec)["token"])
}

func TestLoginPageListsProviders(t *testing.T) {
	f := newFixture(t)
	rec := f.get("/auth/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"google"}, decode(t, rec)["providers"])
}

func TestHasPermission(t *testing.T) {
	f := newFixture(t)
	f.user(t, "Zed", "zed@gmail.com", models.RoleAdmin)
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser)
	body := `{"permissions":{"user":["list"]}}`

	rec := f.postJSON("/api/auth/admin/has-permission", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.postJSON("/api/auth/admin/has-permission", f.login(t, "ann@gmail.com"), body)
	assert.JSONEq(t, `{"success":false,"error":null}`, rec.Body.String())

	rec = f.postJSON("/api/auth/admin/has-permission", f.login(t, "zed@gmail.com"), body)
	assert.JSONEq(t, `{"success":true,"error":null}`, rec.Body.String())

	rec = f.postJSON("/api/auth/admin/has-permission", "", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	f.user(t, "Zed", "zed@gmail.com", models.RoleAdmin)
	f.user(t, "Ann", "ann@gmail.com", models.RoleUser)

	assert.Equal(t, http.StatusUnauthorized, f.get("/api/auth/admin/list-users", "").Code)

	rec := f.get("/api/auth/admin/list-users", f.login(t, "ann@gmail.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.get("/api/auth/admin/list-users?sortBy=email", f.login(t, "zed@gmail.com"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["total"])
}

func TestOAuthStart(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/api/auth/oauth/gitlab", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PROVIDER_NOT_FOUND", decode(t, rec)["code"])

	rec = f.get("/api/auth/oauth/google", "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", loc.Host)
	assert.NotEmpty(t, loc.Query().Get("state"))
	assert.Equal(t, "S256", loc.Query().Get("code_challenge_method"))

	c := responseCookie(t, rec, sessioncookie.StateName)
	assert.Equal(t, loc.Query().Get("state"), c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), c.Expires, time.Minute)
}

func TestOAuthCallback_BadState(t *testing.T) {
	f := newFixture(t)

	rec := f.get("/api/auth/callback/google?code=c&state=nope", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/auth/login/error?error=invalid_token", rec.Header().Get("Location"))

	rec = f.get("/api/auth/callback/google?error=access_denied", "")
	assert.Equal(t, "/auth/login/error?error=access_denied", rec.Header().Get("Location"))
}

func TestOAuthCallback_StateBoundToBrowser(t *testing.T) {
	f := newFixture(t)
	f.useFakeGoogle(t, map[string]any{"sub": "g-1", "email": "mallory@gmail.com", "email_verified": true, "name": "Mallory"})

	// A state issued to one browser and replayed from another is refused.
	state, started := f.startOAuth(t)
	for name, cookie := range map[string]*http.Cookie{
		"missing":  nil,
		"mismatch": {Name: sessioncookie.StateName, Value: "other-state"},
	} {
		rec := f.oauthCallback(state, cookie)
		assert.Equal(t, http.StatusSeeOther, rec.Code, name)
		assert.Equal(t, "/auth/login/error?error=invalid_token", rec.Header().Get("Location"), name)
		assert.Less(t, responseCookie(t, rec, sessioncookie.StateName).MaxAge, 0, name)
		for _, c := range rec.Result().Cookies() {
			assert.NotEqual(t, sessioncookie.Name, c.Name, name)
		}
	}
	_, err := f.repo.Users(nil).GetByEmail(context.Background(), "mallory@gmail.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	// The browser that started the flow completes it.
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	rec := f.oauthCallback(state, started)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))
	assert.NotEmpty(t, sessionCookie(t, rec).Value)
	assert.Less(t, responseCookie(t, rec, sessioncookie.StateName).MaxAge, 0)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMagicLink_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.postJSON("/api/auth/magic-link", "", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_EMAIL", decode(t, rec)["code"])

	rec = f.get("/api/auth/magic-link/verify?token=nope", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/auth/login/error?error="))
}

func TestPresignAvatar_Disabled(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON("/api/auth/avatar/presign", "", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.get("/healthz", "")
	f.get("/profile", "")

	rec := f.get("/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gatekeeper_gate_decisions_total{decision="redirect_login"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/healthz"`)
}
