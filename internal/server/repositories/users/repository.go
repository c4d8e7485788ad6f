// Package users declares the user repository contract and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Sort keys accepted by List.
const (
	SortByName      = "name"
	SortByEmail     = "email"
	SortByCreatedAt = "createdAt"
)

type Repository interface {
	// Create inserts user and fills its ID and timestamps. A duplicate e-mail
	// (case-insensitive) yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// List returns all users ordered by sortBy ascending. Unknown keys fall
	// back to name.
	List(ctx context.Context, sortBy string) ([]models.User, error)

	UpdateProfile(ctx context.Context, id string, name string, image *string) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	SetRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	MarkEmailVerified(ctx context.Context, id string) error

	// DeleteIfRole deletes the user only if its role still equals role at
	// the time of the statement. It reports whether a row was deleted.
	DeleteIfRole(ctx context.Context, id string, role models.Role) (bool, error)
}
