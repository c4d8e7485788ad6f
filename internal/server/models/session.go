package models

import "time"

// Session is a server-tracked proof of authentication. Token is the value
// carried by the session cookie.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionWithUser is a resolved session together with the user it is bound
// to, as read in one pass from the store.
type SessionWithUser struct {
	Session Session `json:"session"`
	User    User    `json:"user"`
}
