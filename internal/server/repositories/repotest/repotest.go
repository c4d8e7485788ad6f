// Package repotest provides an in-memory RepositoryManager for tests. It
// mirrors the PostgreSQL schema constraints that callers rely on: unique
// e-mails, cascading session and account removal on user delete, and the
// compare-and-delete semantics of DeleteIfRole.
package repotest

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/verifications"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

// Store is the shared state behind every repository vended by Manager.
type Store struct {
	mu            sync.Mutex
	users         map[string]*models.User
	sessions      map[string]*models.Session
	accounts      map[string]*models.Account
	verifications map[string]*models.Verification

	// Err, when set, is returned by every repository call.
	Err error
	// Calls counts repository calls by "<repo>.<method>".
	Calls map[string]int
	// BeforeDeleteIfRole, when set, runs ahead of every DeleteIfRole with
	// the store unlocked, so a test can interleave a concurrent write.
	BeforeDeleteIfRole func()
}

func NewStore() *Store {
	return &Store{
		users:         map[string]*models.User{},
		sessions:      map[string]*models.Session{},
		accounts:      map[string]*models.Account{},
		verifications: map[string]*models.Verification{},
		Calls:         map[string]int{},
	}
}

// Manager implements repomanager.RepositoryManager over a Store. The DBTX
// argument is ignored.
type Manager struct {
	*Store
}

func NewManager() *Manager {
	return &Manager{Store: NewStore()}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository { return (*usersRepo)(m.Store) }

func (m *Manager) Sessions(dbx.DBTX) sessions.Repository { return (*sessionsRepo)(m.Store) }

func (m *Manager) Accounts(dbx.DBTX) accounts.Repository { return (*accountsRepo)(m.Store) }

func (m *Manager) Verifications(dbx.DBTX) verifications.Repository {
	return (*verificationsRepo)(m.Store)
}

// enter locks the store, records the call and returns the injected error.
// Callers must unlock.
func (s *Store) enter(name string) error {
	s.mu.Lock()
	s.Calls[name]++
	return s.Err
}

// Writes reports how many mutating calls reached the store.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for name, c := range s.Calls {
		method := name[strings.IndexByte(name, '.')+1:]
		if !strings.HasPrefix(method, "Get") && !strings.HasPrefix(method, "Find") && !strings.HasPrefix(method, "List") {
			n += c
		}
	}
	return n
}

// AddUser stores a copy of u, assigning an ID and timestamps when missing.
func (s *Store) AddUser(u models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
		u.UpdatedAt = u.CreatedAt
	}
	s.users[u.ID] = &u
	out := u
	return &out
}

// AddSession stores a copy of sess.
func (s *Store) AddSession(sess models.Session) *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.sessions[sess.Token] = &sess
	out := sess
	return &out
}

// User returns a copy of the stored user, if any.
func (s *Store) User(id string) (*models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	out := *u
	return &out, true
}

// SessionCount returns the number of stored sessions for userID.
func (s *Store) SessionCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n
}

// VerificationsFor returns copies of verifications with the identifier.
func (s *Store) VerificationsFor(identifier string) []models.Verification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Verification
	for _, v := range s.verifications {
		if v.Identifier == identifier {
			out = append(out, *v)
		}
	}
	return out
}
