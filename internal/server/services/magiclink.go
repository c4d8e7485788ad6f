package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/notify"
)

const (
	magicLinkIdentifier = "magic-link:"
	magicLinkTokenBytes = 24
)

// magic-link verification rows carry "<email>\n<name>" as their value.
func encodeMagicValue(email, name string) string { return email + "\n" + name }

func decodeMagicValue(v string) (email, name string) {
	email, name, _ = strings.Cut(v, "\n")
	return email, name
}

// SendMagicLink mails a single-use sign-in link to email. name is used if
// the link ends up creating a new account.
func (s *AuthService) SendMagicLink(ctx context.Context, email, name string) (err error) {
	defer func() { s.metrics.AuthEvent("magic_link_send", err) }()

	if err := validEmail(email); err != nil {
		return err
	}

	token, err := common.MakeRandHexString(magicLinkTokenBytes)
	if err != nil {
		return fmt.Errorf("error generating token: %w", err)
	}

	v := &models.Verification{
		Identifier: magicLinkIdentifier + strings.ToLower(email),
		Token:      token,
		Value:      encodeMagicValue(email, name),
		ExpiresAt:  s.now().Add(s.magicLinkTTL),
	}
	if err := s.repomanager.Verifications(s.db).Create(ctx, v); err != nil {
		return fmt.Errorf("error storing magic link: %w", err)
	}

	link := s.link("/api/auth/magic-link/verify", url.Values{"token": {token}})
	return s.notifier.Send(ctx, notify.Message{
		To:      email,
		Subject: "Your sign-in link",
		Body:    "Click the link to sign in: " + link,
		Link:    link,
	})
}

// VerifyMagicLink consumes a magic-link token and opens a session,
// creating a verified user on first use.
func (s *AuthService) VerifyMagicLink(ctx context.Context, token, userAgent string) (sw *models.SessionWithUser, err error) {
	defer func() { s.metrics.AuthEvent("magic_link_verify", err) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		v, err := s.repomanager.Verifications(tx).Consume(ctx, token)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrAPIInvalidToken
			}
			return fmt.Errorf("error consuming magic link: %w", err)
		}
		if !strings.HasPrefix(v.Identifier, magicLinkIdentifier) {
			return common.ErrAPIInvalidToken
		}
		if !s.now().Before(v.ExpiresAt) {
			return common.ErrAPITokenExpired
		}

		email, name := decodeMagicValue(v.Value)
		users := s.repomanager.Users(tx)

		u, err := users.GetByEmail(ctx, email)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			d := Draft{Name: name, Email: email}
			if d.Name == "" {
				d.Name = localPart(email)
			}
			if err := s.pipeline.Run(ctx, OpMagicLinkSignUp, &d); err != nil {
				return err
			}
			if u, err = s.createUser(ctx, tx, d, "", true, nil); err != nil {
				return err
			}
		case err != nil:
			return fmt.Errorf("error searching user: %w", err)
		case !u.EmailVerified:
			if err := users.MarkEmailVerified(ctx, u.ID); err != nil {
				return fmt.Errorf("error verifying email: %w", err)
			}
			u.EmailVerified = true
		}

		sess, err := s.sessions.CreateTx(ctx, tx, u.ID, userAgent)
		if err != nil {
			return err
		}
		sw = &models.SessionWithUser{Session: *sess, User: *u}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sw, nil
}
