package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id has no record in the store.
var ErrNotFound = errors.New("session not found")

// ErrSnapshotUnsupported is returned by stores that cannot enumerate
// every session, such as the Redis backend where key expiry replaces
// the sweep. Sweep and Stats surface it to their callers.
var ErrSnapshotUnsupported = errors.New("session snapshot not supported by this store")

// DeviceInfo captures where a session was established from.
type DeviceInfo struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// Session is one authenticated device binding for a user.
type Session struct {
	ID             string     `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Device         DeviceInfo `json:"device"`
	CreatedAt      time.Time  `json:"created_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Active         bool       `json:"active"`
}

// Expired reports whether the session lifetime has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Live reports whether the session is usable at now.
func (s *Session) Live(now time.Time) bool {
	return s.Active && !s.Expired(now)
}

// Store persists session records. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, sess *Session) error
	Delete(ctx context.Context, sess *Session) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Session, error)
	Snapshot(ctx context.Context) ([]*Session, error)
}
