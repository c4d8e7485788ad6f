package repotest

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

type verificationsRepo Store

func (r *verificationsRepo) store() *Store { return (*Store)(r) }

func (r *verificationsRepo) Create(ctx context.Context, v *models.Verification) error {
	s := r.store()
	err := s.enter("verifications.Create")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	if _, ok := s.verifications[v.Token]; ok {
		return common.ErrorAlreadyExists
	}
	v.ID = uuid.NewString()
	v.CreatedAt = time.Now()
	stored := *v
	s.verifications[v.Token] = &stored
	return nil
}

func (r *verificationsRepo) Consume(ctx context.Context, token string) (*models.Verification, error) {
	s := r.store()
	err := s.enter("verifications.Consume")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	v, ok := s.verifications[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(s.verifications, token)
	return v, nil
}

func (r *verificationsRepo) DeleteByIdentifier(ctx context.Context, identifier string) error {
	s := r.store()
	err := s.enter("verifications.DeleteByIdentifier")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for token, v := range s.verifications {
		if v.Identifier == identifier {
			delete(s.verifications, token)
		}
	}
	return nil
}
