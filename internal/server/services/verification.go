package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/notify"
)

const (
	resetPasswordIdentifier = "reset-password:"
	resetTokenBytes         = 24
)

func (s *AuthService) link(path string, query url.Values) string {
	return strings.TrimRight(s.baseURL, "/") + path + "?" + query.Encode()
}

func (s *AuthService) sendVerification(ctx context.Context, u *models.User) error {
	token, err := auth.GenerateToken(u.ID, u.Email, auth.PurposeEmailVerification, s.secretKey, s.verificationTTL)
	if err != nil {
		return fmt.Errorf("error generating token: %w", err)
	}

	link := s.link("/api/auth/verify-email", url.Values{"token": {token}, "callbackURL": {common.ProfilePath}})
	return s.notifier.Send(ctx, notify.Message{
		To:      u.Email,
		Subject: "Verify your email address",
		Body:    "Click the link to verify your email: " + link,
		Link:    link,
	})
}

// SendVerificationEmail mails a fresh verification link. Unknown and
// already verified addresses are ignored so the call reveals nothing.
func (s *AuthService) SendVerificationEmail(ctx context.Context, email string) error {
	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error searching user: %w", err)
	}
	if u.EmailVerified {
		return nil
	}
	return s.sendVerification(ctx, u)
}

// VerifyEmail consumes a verification token, marks the address verified and
// signs the user in.
func (s *AuthService) VerifyEmail(ctx context.Context, token, userAgent string) (sw *models.SessionWithUser, err error) {
	defer func() { s.metrics.AuthEvent("verify_email", err) }()

	claims, err := auth.ParseToken(token, auth.PurposeEmailVerification, s.secretKey)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, common.ErrAPITokenExpired
		}
		return nil, common.ErrAPIInvalidToken
	}

	repo := s.repomanager.Users(s.db)
	u, err := repo.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrAPIInvalidToken
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	if !strings.EqualFold(u.Email, claims.Email) {
		return nil, common.ErrAPIInvalidToken
	}

	if !u.EmailVerified {
		if err := repo.MarkEmailVerified(ctx, u.ID); err != nil {
			return nil, fmt.Errorf("error verifying email: %w", err)
		}
		u.EmailVerified = true
	}

	sess, err := s.sessions.Create(ctx, u.ID, userAgent)
	if err != nil {
		return nil, err
	}
	return &models.SessionWithUser{Session: *sess, User: *u}, nil
}

// RequestPasswordReset mails a single-use reset link. Unknown addresses are
// ignored.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { s.metrics.AuthEvent("request_password_reset", err) }()

	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("error searching user: %w", err)
	}

	token, err := common.MakeRandHexString(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("error generating token: %w", err)
	}

	v := &models.Verification{
		Identifier: resetPasswordIdentifier + u.ID,
		Token:      token,
		Value:      u.ID,
		ExpiresAt:  s.now().Add(s.passwordResetTTL),
	}
	if err := s.repomanager.Verifications(s.db).Create(ctx, v); err != nil {
		return fmt.Errorf("error storing reset token: %w", err)
	}

	link := s.link("/auth/reset-password", url.Values{"token": {token}})
	return s.notifier.Send(ctx, notify.Message{
		To:      u.Email,
		Subject: "Reset your password",
		Body:    "Click the link to reset your password: " + link,
		Link:    link,
	})
}

// ResetPassword sets a new password using a reset token and signs the user
// out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.metrics.AuthEvent("reset_password", err) }()

	if err := s.validPassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("error hashing password: %w", err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		v, err := s.repomanager.Verifications(tx).Consume(ctx, token)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAPIInvalidToken
			}
			return fmt.Errorf("error consuming reset token: %w", err)
		}
		if v.Identifier != resetPasswordIdentifier+v.Value {
			return common.ErrAPIInvalidToken
		}
		if !s.now().Before(v.ExpiresAt) {
			return common.ErrAPITokenExpired
		}

		if err := s.repomanager.Users(tx).UpdatePassword(ctx, v.Value, hash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAPIInvalidToken
			}
			return fmt.Errorf("error updating password: %w", err)
		}
		return s.sessions.InvalidateUserTx(ctx, tx, v.Value)
	})
}
