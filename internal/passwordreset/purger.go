package passwordreset

import (
	"context"
	"time"
)

// Purger deletes stale reset tokens without pulling in the full service
// wiring. The cron worker uses it directly.
type Purger struct {
	repo Repository
	now  func() time.Time
}

// NewPurger wraps the repository's stale-row cleanup.
func NewPurger(repo Repository) *Purger {
	return &Purger{repo: repo, now: time.Now}
}

// Purge removes used and expired tokens, returning the row count.
func (p *Purger) Purge(ctx context.Context) (int64, error) {
	return p.repo.PurgeStale(ctx, p.now().UTC())
}
