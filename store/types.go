// Package store defines the persistence contracts for token state. It is a
// leaf package so that both the engine and the store backends can share the
// row type and interfaces without depending on each other.
package store

import (
	"context"
	"time"
)

// RefreshToken is a stored opaque refresh credential. Exactly one row per
// token family is live at any instant: rotation deletes the row before the
// replacement is created.
type RefreshToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RefreshTokenStore persists refresh-token rows.
//
// Claim atomically removes and returns the row for a token: of any number
// of concurrent callers presenting the same token, at most one observes
// ok == true. Unknown or garbage tokens return ok == false with a nil error.
type RefreshTokenStore interface {
	Save(ctx context.Context, token RefreshToken) error
	Claim(ctx context.Context, token string) (row *RefreshToken, ok bool, err error)
}

// BlacklistStore persists revoked access-token identifiers. Add is
// idempotent; entries must be retained at least until expiresAt and may be
// pruned afterwards.
type BlacklistStore interface {
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
}
