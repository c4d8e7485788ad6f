package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/access"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// UserHasPermission evaluates req against the role of the session user.
// A nil session has no permissions.
func (s *AuthService) UserHasPermission(sw *models.SessionWithUser, req access.Request) bool {
	if sw == nil {
		return false
	}
	return s.policy.HasPermission(sw.User.Role, req)
}

// SortAdminsFirst stably moves ADMIN users to the front, keeping the
// incoming order within each role.
func SortAdminsFirst(users []models.User) []models.User {
	out := slices.Clone(users)
	slices.SortStableFunc(out, func(a, b models.User) int {
		switch {
		case a.IsAdmin() == b.IsAdmin():
			return 0
		case a.IsAdmin():
			return -1
		default:
			return 1
		}
	})
	return out
}

// ListUsers returns every user sorted by sortBy with admins listed first.
func (s *AuthService) ListUsers(ctx context.Context, actor *models.SessionWithUser, sortBy string) ([]models.User, error) {
	if !s.UserHasPermission(actor, access.PermListUsers) {
		return nil, common.ErrorForbidden
	}
	users, err := s.repomanager.Users(s.db).List(ctx, sortBy)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return SortAdminsFirst(users), nil
}

// SetRole changes the role of userID. The actor's permission is checked
// right before the write.
func (s *AuthService) SetRole(ctx context.Context, actor *models.SessionWithUser, userID string, role models.Role) (u *models.User, err error) {
	defer func() { s.metrics.AuthEvent("set_role", err) }()

	if !s.UserHasPermission(actor, access.PermSetRole) {
		return nil, common.ErrorForbidden
	}
	if _, ok := models.ParseRole(string(role)); !ok {
		return nil, common.ErrorValidation
	}

	u, err = s.repomanager.Users(s.db).SetRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("error setting role: %w", err)
	}
	return u, nil
}

// DeleteUser removes userID if its role is USER at the moment of the
// delete. It reports whether the actor deleted themself, in which case the
// actor's sessions are gone too.
func (s *AuthService) DeleteUser(ctx context.Context, actor *models.SessionWithUser, userID string) (self bool, err error) {
	defer func() { s.metrics.AuthEvent("delete_user", err) }()

	if !s.UserHasPermission(actor, access.PermDeleteUser) {
		return false, common.ErrorForbidden
	}

	deleted, err := s.repomanager.Users(s.db).DeleteIfRole(ctx, userID, models.RoleUser)
	if err != nil {
		return false, fmt.Errorf("error deleting user: %w", err)
	}
	if !deleted {
		return false, common.ErrUserNotFound
	}

	if userID != actor.User.ID {
		return false, nil
	}
	// Sessions cascade with the user row; the explicit call covers stores
	// without the foreign key.
	if err := s.sessions.InvalidateUser(ctx, userID); err != nil {
		return true, err
	}
	return true, nil
}
