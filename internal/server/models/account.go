package models

import "time"

// Account links a user to an external OAuth identity.
type Account struct {
	ID        string
	UserID    string
	Provider  string
	AccountID string
	CreatedAt time.Time
}

// Verification is a single-use token (magic link, password reset) keyed by
// an identifier such as "magic-link:<email>".
type Verification struct {
	ID         string
	Identifier string
	Token      string
	Value      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
