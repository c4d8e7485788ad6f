// Package services contains server-side business logic. AuthService is the
// authentication provider: it creates users, verifies credentials, issues
// sessions and runs the e-mail, magic-link and OAuth flows.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/notify"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessionstore"
)

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    *sessionstore.Store
	notifier    notify.Notifier

	hasher    *cryptox.Hasher
	pipeline  *Pipeline
	policy    *access.Policy
	providers map[string]*OAuthProvider
	logger    logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	secretKey         []byte
	baseURL           string
	minPasswordLength int
	verificationTTL   time.Duration
	magicLinkTTL      time.Duration
	passwordResetTTL  time.Duration
	oauthStateTTL     time.Duration

	// dummyHash is verified against when the user does not exist so that
	// unknown e-mails cost the same as wrong passwords.
	dummyHash string
}

type Option func(*AuthService)

func WithLogger(l logging.Logger) Option { return func(s *AuthService) { s.logger = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *AuthService) { s.metrics = m } }

func WithPolicy(p *access.Policy) Option { return func(s *AuthService) { s.policy = p } }

func WithHasher(h *cryptox.Hasher) Option { return func(s *AuthService) { s.hasher = h } }

func WithPipeline(p *Pipeline) Option { return func(s *AuthService) { s.pipeline = p } }

// WithOAuthProviders replaces the providers built from the config.
func WithOAuthProviders(p ...*OAuthProvider) Option {
	return func(s *AuthService) {
		s.providers = make(map[string]*OAuthProvider, len(p))
		for _, prov := range p {
			s.providers[prov.ID] = prov
		}
	}
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, sessions *sessionstore.Store, notifier notify.Notifier, opts ...Option) *AuthService {
	s := &AuthService{
		db:                db,
		repomanager:       m,
		sessions:          sessions,
		notifier:          notifier,
		hasher:            cryptox.NewHasher(cryptox.DefaultParams),
		pipeline:          DefaultPipeline(cfg.AllowedEmailDomains(), cfg.AdminEmails),
		policy:            access.DefaultPolicy(),
		providers:         NewOAuthProviders(cfg),
		logger:            logging.Nop{},
		now:               time.Now,
		secretKey:         []byte(cfg.SecretKey),
		baseURL:           cfg.BaseURL,
		minPasswordLength: cfg.MinPasswordLength,
		verificationTTL:   cfg.VerificationTTL,
		magicLinkTTL:      cfg.MagicLinkTTL,
		passwordResetTTL:  cfg.PasswordResetTTL,
		oauthStateTTL:     10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	h, err := s.hasher.Hash("gatekeeper-timing-placeholder")
	if err != nil {
		panic(err)
	}
	s.dummyHash = h
	return s
}

// Policy exposes the access policy for callers that evaluate permissions
// on a resolved session.
func (s *AuthService) Policy() *access.Policy { return s.policy }

func (s *AuthService) validPassword(password string) error {
	if len(password) < s.minPasswordLength {
		return common.ErrPasswordTooShort
	}
	return nil
}

func validEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return common.ErrInvalidEmail
	}
	return nil
}

// createUser runs the creation steps on d and inserts the user using tx.
func (s *AuthService) createUser(ctx context.Context, tx dbx.DBTX, d Draft, passwordHash string, verified bool, image *string) (*models.User, error) {
	if err := s.pipeline.Run(ctx, OpCreateUser, &d); err != nil {
		return nil, err
	}

	u := &models.User{
		Name:          d.Name,
		Email:         d.Email,
		EmailVerified: verified,
		PasswordHash:  passwordHash,
		Role:          d.Role,
		Image:         image,
	}
	created, err := s.repomanager.Users(tx).Create(ctx, u)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrUserExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return created, nil
}

// SignUpEmail registers a password user. The user is not signed in; a
// verification e-mail is sent instead.
func (s *AuthService) SignUpEmail(ctx context.Context, name, email, password string) (u *models.User, err error) {
	defer func() { s.metrics.AuthEvent("sign_up", err) }()

	d := Draft{Name: name, Email: email}
	if err := s.pipeline.Run(ctx, OpSignUpEmail, &d); err != nil {
		return nil, err
	}
	if err := validEmail(d.Email); err != nil {
		return nil, err
	}
	if d.Name == "" {
		return nil, common.ErrInvalidName
	}
	if err := s.validPassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	u, err = s.createUser(ctx, s.db, d, hash, false, nil)
	if err != nil {
		return nil, err
	}

	if err := s.sendVerification(ctx, u); err != nil {
		s.logger.Error(ctx, "send verification email", "user_id", u.ID, "error", err)
	}
	return u, nil
}

// SignInEmail checks the credentials and opens a session. Unverified users
// get EMAIL_NOT_VERIFIED and a fresh verification e-mail.
func (s *AuthService) SignInEmail(ctx context.Context, email, password, userAgent string) (sw *models.SessionWithUser, err error) {
	defer func() { s.metrics.AuthEvent("sign_in", err) }()

	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_, _ = s.hasher.Verify(password, s.dummyHash)
			return nil, common.ErrInvalidLogin
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if !u.HasPassword() {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return nil, common.ErrInvalidLogin
	}
	ok, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("error verifying password: %w", err)
	}
	if !ok {
		return nil, common.ErrInvalidLogin
	}

	if !u.EmailVerified {
		if err := s.sendVerification(ctx, u); err != nil {
			s.logger.Error(ctx, "resend verification email", "user_id", u.ID, "error", err)
		}
		return nil, common.ErrEmailNotVerified
	}

	sess, err := s.sessions.Create(ctx, u.ID, userAgent)
	if err != nil {
		return nil, err
	}
	return &models.SessionWithUser{Session: *sess, User: *u}, nil
}

func (s *AuthService) SignOut(ctx context.Context, token string) error {
	err := s.sessions.Invalidate(ctx, token)
	s.metrics.AuthEvent("sign_out", err)
	return err
}

// GetSession resolves token; (nil, nil) means no valid session.
func (s *AuthService) GetSession(ctx context.Context, token string) (*models.SessionWithUser, error) {
	return s.sessions.Resolve(ctx, token)
}

// ChangePassword replaces the password of the session user after checking
// the current one.
func (s *AuthService) ChangePassword(ctx context.Context, sw *models.SessionWithUser, current, next string) (err error) {
	defer func() { s.metrics.AuthEvent("change_password", err) }()

	if err := s.validPassword(next); err != nil {
		return err
	}

	repo := s.repomanager.Users(s.db)
	u, err := repo.GetByID(ctx, sw.User.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrUserNotFound
		}
		return fmt.Errorf("error searching user: %w", err)
	}
	if !u.HasPassword() {
		return common.ErrInvalidPassword
	}
	ok, err := s.hasher.Verify(current, u.PasswordHash)
	if err != nil {
		return fmt.Errorf("error verifying password: %w", err)
	}
	if !ok {
		return common.ErrInvalidPassword
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}
	if err := repo.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("error updating password: %w", err)
	}
	return nil
}

// UpdateUser changes the display name and image of the session user.
func (s *AuthService) UpdateUser(ctx context.Context, sw *models.SessionWithUser, name string, image *string) (*models.User, error) {
	d := Draft{Name: name, Email: sw.User.Email, Role: sw.User.Role}
	if err := s.pipeline.Run(ctx, OpUpdateUser, &d); err != nil {
		return nil, err
	}
	if d.Name == "" {
		return nil, common.ErrInvalidName
	}

	u, err := s.repomanager.Users(s.db).UpdateProfile(ctx, sw.User.ID, d.Name, image)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("error updating user: %w", err)
	}
	return u, nil
}
