package users

import (
	"context"

	"github.com/google/uuid"

	"github.com/posworks/posgrid-backend/pkg/db/models"
)

type identityLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// IdentityService answers "who is this user right now" for the auth
// middleware. Hits go to the in-process cache; misses fall through to the
// database and prime the cache for the next request.
type IdentityService struct {
	repo  identityLoader
	cache *IdentityCache
}

// NewIdentityService wires the read-through identity lookup.
func NewIdentityService(repo Repository, cache *IdentityCache) *IdentityService {
	return &IdentityService{repo: repo, cache: cache}
}

// Lookup resolves the user's current account state. Database errors,
// including gorm.ErrRecordNotFound, pass through untouched so callers can
// distinguish a missing account from a dependency failure.
func (s *IdentityService) Lookup(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	if s.cache != nil {
		if dto, ok := s.cache.Get(id); ok {
			return dto, nil
		}
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := FromModel(user)
	if s.cache != nil {
		s.cache.Set(dto)
	}
	return dto, nil
}
