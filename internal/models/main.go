// Package models defines the data structures kept by the gateway simulator.
package models

import "time"

// Account is a gateway administrator allowed to log in.
type Account struct {
	// Username is the login name.
	Username string
	// Password is stored in clear text, as the challenge needs it on both sides.
	Password string
}

// Session is an authenticated gateway session.
type Session struct {
	// SID is sent back by clients in the sid cookie.
	SID string `json:"sid"`
	// CSRFToken must accompany state-changing requests.
	CSRFToken string `json:"token"`
	// Username is the account that owns the session.
	Username string `json:"-"`
	// ExpiresAt is the absolute expiration of the session.
	ExpiresAt time.Time `json:"-"`
}

// Expired reports whether the session has expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
