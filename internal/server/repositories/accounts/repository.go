package accounts

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type Repository interface {
	// Create links an external identity to a user. Linking the same
	// provider identity twice yields common.ErrorAlreadyExists.
	Create(ctx context.Context, a *models.Account) error
	// FindUserID returns the user linked to the provider identity or
	// common.ErrorNotFound.
	FindUserID(ctx context.Context, provider, accountID string) (string, error)
	ListByUser(ctx context.Context, userID string) ([]models.Account, error)
}
