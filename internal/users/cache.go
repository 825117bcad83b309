package users

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// IdentityCache is a short-TTL read-through cache sitting in front of the
// credential store, keyed by user id. The auth middleware consults it on
// every request; mutations elsewhere call Invalidate so stale identities
// never outlive a role or status change.
type IdentityCache struct {
	mu         sync.RWMutex
	entries    map[uuid.UUID]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	user      *UserDTO
	expiresAt time.Time
}

// NewIdentityCache constructs the cache. maxEntries bounds growth: once the
// map crosses it, stale entries are swept on the next write.
func NewIdentityCache(ttl time.Duration, maxEntries int) *IdentityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &IdentityCache{
		entries:    make(map[uuid.UUID]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached identity when present and unexpired.
func (c *IdentityCache) Get(id uuid.UUID) (*UserDTO, bool) {
	c.mu.RLock()
	entry, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.user, true
}

// Set stores the identity with the configured TTL.
func (c *IdentityCache) Set(user *UserDTO) {
	if user == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	c.entries[user.ID] = cacheEntry{
		user:      user,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate drops a single cached identity.
func (c *IdentityCache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Clear empties the cache.
func (c *IdentityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uuid.UUID]cacheEntry)
}

// Len reports the current entry count, expired entries included.
func (c *IdentityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *IdentityCache) sweepLocked() {
	now := c.now()
	for id, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
}
