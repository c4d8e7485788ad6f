package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

// Operator operations used by the admin CLI. They bypass the sign-up
// pipeline: the domain allow-list does not apply and the role is taken
// as given.

// ProvisionUser creates a verified password user with role.
func (s *AuthService) ProvisionUser(ctx context.Context, name, email, password string, role models.Role) (*models.User, error) {
	if err := validEmail(email); err != nil {
		return nil, err
	}
	if err := s.validPassword(password); err != nil {
		return nil, err
	}
	name = NormaliseName(name)
	if name == "" {
		return nil, common.ErrInvalidName
	}
	if _, ok := models.ParseRole(string(role)); !ok {
		return nil, common.ErrorValidation
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Name:          name,
		Email:         email,
		EmailVerified: true,
		PasswordHash:  hash,
		Role:          role,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrUserExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// UserByEmail looks a user up; a missing user is ErrUserNotFound.
func (s *AuthService) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return u, nil
}

// SetRoleByEmail changes the role of the user with email.
func (s *AuthService) SetRoleByEmail(ctx context.Context, email string, role models.Role) (*models.User, error) {
	u, err := s.UserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	out, err := s.repomanager.Users(s.db).SetRole(ctx, u.ID, role)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("error setting role: %w", err)
	}
	return out, nil
}

// SetUserImage replaces the avatar URL of userID, keeping the name.
func (s *AuthService) SetUserImage(ctx context.Context, u *models.User, image string) (*models.User, error) {
	out, err := s.repomanager.Users(s.db).UpdateProfile(ctx, u.ID, u.Name, &image)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("error updating user: %w", err)
	}
	return out, nil
}
