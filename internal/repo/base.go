package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by the domain repositories (users, password reset) so
// they share one way of binding queries to a request context.
type Base struct {
	db *gorm.DB
}

// NewBase wraps a GORM connection for embedding.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// Rebind returns a Base backed by the given transaction. Repositories use
// it to implement their WithTx variants.
func (b Base) Rebind(tx *gorm.DB) Base {
	return Base{db: tx}
}

// DB returns the connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
