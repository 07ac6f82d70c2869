// Package session implements the opaque session-token layer: a store mapping
// session ids to a user reference and an expiry instant, plus the HTTP gate
// that resolves the id to an authenticated user.
package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID     string    `json:"session_id"`
	UserID string    `json:"-"`
	Expiry time.Time `json:"expiry"`
}

// Expired reports whether the session is no longer valid at the given
// instant. The boundary is inclusive: a session expiring exactly now is
// already expired.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

type Store interface {
	Create(ctx context.Context, userID string, expiry time.Time) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions whose expiry has passed. The gate never
	// calls it; it only runs as an optional background sweep.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// User is the authenticated identity attached to the request context by the
// gate. The password hash never travels with it.
type User struct {
	ID     string `json:"_id"`
	Email  string `json:"email"`
	Label  string `json:"label"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

// Users resolves the user a session points at.
type Users interface {
	ByID(ctx context.Context, id string) (User, error)
}

type ctxKey struct{}

var ctxKeyUser = ctxKey{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(User)
	return u, ok
}
