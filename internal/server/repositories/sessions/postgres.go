// Package sessions provides a PostgreSQL-backed repository for login
// sessions keyed by their cookie token.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// PostgresRepository implements session persistence over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts s and fills its ID and CreatedAt.
func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (user_id, token, expires_at, user_agent)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, s.UserID, s.Token, s.ExpiresAt, s.UserAgent).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindWithUser(ctx context.Context, token string, now time.Time) (*models.SessionWithUser, error) {
	query := `
		SELECT s.id, s.token, s.user_id, s.expires_at, s.user_agent, s.created_at,
		       u.id, u.name, u.email, u.email_verified, u.password_hash, u.role, u.image, u.created_at, u.updated_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > $2
	`
	out := &models.SessionWithUser{}
	var hash, image sql.NullString
	var role string

	err := r.db.QueryRowContext(ctx, query, token, now).Scan(
		&out.Session.ID, &out.Session.Token, &out.Session.UserID, &out.Session.ExpiresAt, &out.Session.UserAgent, &out.Session.CreatedAt,
		&out.User.ID, &out.User.Name, &out.User.Email, &out.User.EmailVerified, &hash, &role, &image, &out.User.CreatedAt, &out.User.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	out.User.PasswordHash = hash.String
	out.User.Role = models.Role(role)
	if image.Valid {
		img := image.String
		out.User.Image = &img
	}
	return out, nil
}

// Delete removes the session for token. Deleting an unknown token is not an
// error.
func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
