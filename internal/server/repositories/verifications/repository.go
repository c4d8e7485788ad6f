package verifications

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, v *models.Verification) error
	// Consume atomically removes and returns the verification for token.
	// A token can be consumed at most once; later calls get
	// common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.Verification, error)
	DeleteByIdentifier(ctx context.Context, identifier string) error
}
