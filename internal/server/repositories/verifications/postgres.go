// Package verifications stores single-use tokens for magic links and
// password resets.
package verifications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, v *models.Verification) error {
	query := `
		INSERT INTO verifications (identifier, token, value, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, v.Identifier, v.Token, v.Value, v.ExpiresAt).Scan(&v.ID, &v.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Consume(ctx context.Context, token string) (*models.Verification, error) {
	query := `
		DELETE FROM verifications
		WHERE token = $1
		RETURNING id, identifier, token, value, expires_at, created_at
	`
	v := &models.Verification{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&v.ID, &v.Identifier, &v.Token, &v.Value, &v.ExpiresAt, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) DeleteByIdentifier(ctx context.Context, identifier string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM verifications WHERE identifier = $1`, identifier); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
