package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sessionIDBytes = 32

// Registry manages session lifecycle over a pluggable Store. Every session
// shares one fixed TTL from configuration.
type Registry struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Stats summarizes the registry contents for the health/ops surface.
type Stats struct {
	TotalSessions  int `json:"total_sessions"`
	ActiveSessions int `json:"active_sessions"`
	UniqueUsers    int `json:"unique_users"`
}

// NewRegistry constructs a registry with the provided backing store.
func NewRegistry(store Store, ttl time.Duration) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Registry{store: store, ttl: ttl, now: time.Now}, nil
}

// NewSessionID produces an unguessable session identifier.
func NewSessionID() (string, error) {
	bytes := make([]byte, sessionIDBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// Create registers a new active session for the user.
func (r *Registry) Create(ctx context.Context, userID uuid.UUID, id string, device DeviceInfo) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	now := r.now()
	sess := &Session{
		ID:             id,
		UserID:         userID,
		Device:         device,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(r.ttl),
		Active:         true,
	}
	if err := r.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get returns the live session for id, bumping its last activity. Expired
// records are deleted on the way out and reported as not found.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if sess.Expired(now) {
		if delErr := r.store.Delete(ctx, sess); delErr != nil {
			return nil, delErr
		}
		return nil, ErrNotFound
	}
	if !sess.Active {
		return nil, ErrNotFound
	}
	sess.LastActivityAt = now
	if err := r.store.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Touch reports whether the session is live, refreshing activity when it is.
func (r *Registry) Touch(ctx context.Context, id string) (bool, error) {
	_, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Deactivate marks the session inactive without deleting the record so the
// termination survives until the sweep or key expiry.
func (r *Registry) Deactivate(ctx context.Context, id string) error {
	sess, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !sess.Active {
		return nil
	}
	sess.Active = false
	return r.store.Put(ctx, sess)
}

// UserSessions returns the user's live sessions.
func (r *Registry) UserSessions(ctx context.Context, userID uuid.UUID) ([]*Session, error) {
	all, err := r.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := r.now()
	var out []*Session
	for _, sess := range all {
		if sess.Live(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// DeactivateAll marks every live session for the user inactive and returns
// how many were terminated.
func (r *Registry) DeactivateAll(ctx context.Context, userID uuid.UUID) (int, error) {
	live, err := r.UserSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, sess := range live {
		if err := r.Deactivate(ctx, sess.ID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Sweep deletes expired and deactivated records, returning how many were
// removed. The Redis backend expires keys itself and snapshots nothing.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	all, err := r.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	now := r.now()
	removed := 0
	for _, sess := range all {
		if sess.Live(now) {
			continue
		}
		if err := r.store.Delete(ctx, sess); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Stats reports registry counts from a point-in-time snapshot.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	all, err := r.store.Snapshot(ctx)
	if err != nil {
		return Stats{}, err
	}
	now := r.now()
	stats := Stats{TotalSessions: len(all)}
	users := make(map[uuid.UUID]struct{})
	for _, sess := range all {
		if !sess.Live(now) {
			continue
		}
		stats.ActiveSessions++
		users[sess.UserID] = struct{}{}
	}
	stats.UniqueUsers = len(users)
	return stats, nil
}
