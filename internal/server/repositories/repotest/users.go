package repotest

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
	"github.com/google/uuid"
)

type usersRepo Store

func (r *usersRepo) store() *Store { return (*Store)(r) }

func (r *usersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	s := r.store()
	err := s.enter("users.Create")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}

	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	s.users[user.ID] = &stored
	return user, nil
}

func (r *usersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	s := r.store()
	err := s.enter("users.GetByID")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *u
	return &out, nil
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s := r.store()
	err := s.enter("users.GetByEmail")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := *u
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *usersRepo) List(ctx context.Context, sortBy string) ([]models.User, error) {
	s := r.store()
	err := s.enter("users.List")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}

	key := func(u models.User) string {
		switch sortBy {
		case users.SortByEmail:
			return u.Email
		case users.SortByCreatedAt:
			return u.CreatedAt.Format(time.RFC3339Nano)
		default:
			return u.Name
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := key(out[i]), key(out[j])
		if ki != kj {
			return ki < kj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *usersRepo) UpdateProfile(ctx context.Context, id string, name string, image *string) (*models.User, error) {
	s := r.store()
	err := s.enter("users.UpdateProfile")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.Name = name
	u.Image = image
	u.UpdatedAt = time.Now()
	out := *u
	return &out, nil
}

func (r *usersRepo) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	s := r.store()
	err := s.enter("users.UpdatePassword")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	u, ok := s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *usersRepo) SetRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	s := r.store()
	err := s.enter("users.SetRole")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	u, ok := s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	u.Role = role
	out := *u
	return &out, nil
}

func (r *usersRepo) MarkEmailVerified(ctx context.Context, id string) error {
	s := r.store()
	err := s.enter("users.MarkEmailVerified")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	u, ok := s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.EmailVerified = true
	return nil
}

func (r *usersRepo) DeleteIfRole(ctx context.Context, id string, role models.Role) (bool, error) {
	s := r.store()
	if s.BeforeDeleteIfRole != nil {
		s.BeforeDeleteIfRole()
	}
	err := s.enter("users.DeleteIfRole")
	defer s.mu.Unlock()
	if err != nil {
		return false, err
	}

	u, ok := s.users[id]
	if !ok || u.Role != role {
		return false, nil
	}
	delete(s.users, id)
	for token, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, token)
		}
	}
	for key, a := range s.accounts {
		if a.UserID == id {
			delete(s.accounts, key)
		}
	}
	return true, nil
}
