package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repotest"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessionstore"
	"github.com/stretchr/testify/require"
)

var fastParams = cryptox.Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 16, SaltLen: 8}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *captureNotifier) Send(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func (n *captureNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.msgs, "no message sent")
	return n.msgs[len(n.msgs)-1]
}

func (n *captureNotifier) lastToken(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(n.last(t).Link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:         "test-secret",
		BaseURL:           "http://gk.test",
		Environment:       config.EnvProduction,
		MagicLinkTTL:      5 * time.Minute,
		VerificationTTL:   time.Hour,
		PasswordResetTTL:  time.Hour,
		MinPasswordLength: 6,
		AdminEmails:       []string{"boss@gmail.com"},
		EmailDomains:      []string{"gmail.com", "yahoo.com", "outlook.com"},
	}
}

type fixture struct {
	svc      *AuthService
	repo     *repotest.Manager
	mock     sqlmock.Sqlmock
	notifier *captureNotifier
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	m := repotest.NewManager()
	n := &captureNotifier{}
	opts = append([]Option{WithHasher(cryptox.NewHasher(fastParams))}, opts...)
	svc := NewAuthService(db, m, testConfig(), sessionstore.New(db, m, 0), n, opts...)

	return &fixture{svc: svc, repo: m, mock: mock, notifier: n}
}

// addUser stores a verified user with password.
func (f *fixture) addUser(t *testing.T, name, email, password string, role models.Role) *models.User {
	t.Helper()
	u := models.User{Name: name, Email: email, Role: role, EmailVerified: true}
	if password != "" {
		h, err := f.svc.hasher.Hash(password)
		require.NoError(t, err)
		u.PasswordHash = h
	}
	return f.repo.AddUser(u)
}

func (f *fixture) signIn(t *testing.T, email, password string) *models.SessionWithUser {
	t.Helper()
	sw, err := f.svc.SignInEmail(context.Background(), email, password, "test")
	require.NoError(t, err)
	return sw
}
