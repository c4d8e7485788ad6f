package repotest

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

type accountsRepo Store

func (r *accountsRepo) store() *Store { return (*Store)(r) }

func accountKey(provider, accountID string) string { return provider + ":" + accountID }

func (r *accountsRepo) Create(ctx context.Context, a *models.Account) error {
	s := r.store()
	err := s.enter("accounts.Create")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	key := accountKey(a.Provider, a.AccountID)
	if _, ok := s.accounts[key]; ok {
		return common.ErrorAlreadyExists
	}
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	stored := *a
	s.accounts[key] = &stored
	return nil
}

func (r *accountsRepo) FindUserID(ctx context.Context, provider, accountID string) (string, error) {
	s := r.store()
	err := s.enter("accounts.FindUserID")
	defer s.mu.Unlock()
	if err != nil {
		return "", err
	}

	a, ok := s.accounts[accountKey(provider, accountID)]
	if !ok {
		return "", common.ErrorNotFound
	}
	return a.UserID, nil
}

func (r *accountsRepo) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	s := r.store()
	err := s.enter("accounts.ListByUser")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []models.Account
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out, nil
}
