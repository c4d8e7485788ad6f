// Package sessionstore adapts session and user records in the repository
// layer to the session operations used by guards and the auth service.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// DefaultTTL is the lifetime of a freshly issued session.
const DefaultTTL = 30 * 24 * time.Hour

// tokenBytes is the entropy of a session token before hex encoding.
const tokenBytes = 32

type Store struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ttl         time.Duration
	now         func() time.Time
}

func New(db *sql.DB, m repomanager.RepositoryManager, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{db: db, repomanager: m, ttl: ttl, now: time.Now}
}

// Resolve returns the session for token together with its user. A missing
// row, an expired session and a missing user all resolve to (nil, nil).
// Only store failures are reported as errors.
func (s *Store) Resolve(ctx context.Context, token string) (*models.SessionWithUser, error) {
	if token == "" {
		return nil, nil
	}

	now := s.now()
	sw, err := s.repomanager.Sessions(s.db).FindWithUser(ctx, token, now)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if sw.Session.Expired(now) || sw.User.ID == "" {
		return nil, nil
	}
	return sw, nil
}

// Create issues a new session for userID.
func (s *Store) Create(ctx context.Context, userID, userAgent string) (*models.Session, error) {
	return s.CreateTx(ctx, s.db, userID, userAgent)
}

// CreateTx issues a new session using tx, so it can share a transaction
// with the write that authenticated the user.
func (s *Store) CreateTx(ctx context.Context, tx dbx.DBTX, userID, userAgent string) (*models.Session, error) {
	token, err := common.MakeRandHexString(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	sess := &models.Session{
		Token:     token,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.ttl),
		UserAgent: userAgent,
	}
	if err := s.repomanager.Sessions(tx).Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Invalidate removes the session for token. Unknown or empty tokens are
// ignored.
func (s *Store) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.repomanager.Sessions(s.db).Delete(ctx, token); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}

// InvalidateUser removes every session of userID.
func (s *Store) InvalidateUser(ctx context.Context, userID string) error {
	return s.InvalidateUserTx(ctx, s.db, userID)
}

func (s *Store) InvalidateUserTx(ctx context.Context, tx dbx.DBTX, userID string) error {
	if err := s.repomanager.Sessions(tx).DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("invalidate user sessions: %w", err)
	}
	return nil
}

// PurgeExpired deletes sessions that expired before now.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return n, nil
}

// TTL is the lifetime assigned to new sessions.
func (s *Store) TTL() time.Duration { return s.ttl }
