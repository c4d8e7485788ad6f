package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	// FindWithUser returns the session for token joined with its user, if
	// the session is still valid at now. Otherwise common.ErrorNotFound.
	FindWithUser(ctx context.Context, token string, now time.Time) (*models.SessionWithUser, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
