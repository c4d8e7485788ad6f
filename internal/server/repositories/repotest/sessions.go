package repotest

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

type sessionsRepo Store

func (r *sessionsRepo) store() *Store { return (*Store)(r) }

func (r *sessionsRepo) Create(ctx context.Context, sess *models.Session) error {
	s := r.store()
	err := s.enter("sessions.Create")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	if _, ok := s.users[sess.UserID]; !ok {
		return common.ErrorNotFound
	}
	sess.ID = uuid.NewString()
	sess.CreatedAt = time.Now()
	stored := *sess
	s.sessions[sess.Token] = &stored
	return nil
}

func (r *sessionsRepo) FindWithUser(ctx context.Context, token string, now time.Time) (*models.SessionWithUser, error) {
	s := r.store()
	err := s.enter("sessions.FindWithUser")
	defer s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	sess, ok := s.sessions[token]
	if !ok || !now.Before(sess.ExpiresAt) {
		return nil, common.ErrorNotFound
	}
	u, ok := s.users[sess.UserID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &models.SessionWithUser{Session: *sess, User: *u}, nil
}

func (r *sessionsRepo) Delete(ctx context.Context, token string) error {
	s := r.store()
	err := s.enter("sessions.Delete")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	delete(s.sessions, token)
	return nil
}

func (r *sessionsRepo) DeleteByUser(ctx context.Context, userID string) error {
	s := r.store()
	err := s.enter("sessions.DeleteByUser")
	defer s.mu.Unlock()
	if err != nil {
		return err
	}

	for token, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, token)
		}
	}
	return nil
}

func (r *sessionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s := r.store()
	err := s.enter("sessions.DeleteExpired")
	defer s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	var n int64
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}
