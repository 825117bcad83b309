package users

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/pkg/db/models"
	"github.com/posworks/posgrid-backend/pkg/enums"
)

type countingLoader struct {
	users map[uuid.UUID]*models.User
	calls int
}

func (l *countingLoader) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	l.calls++
	user, ok := l.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func TestIdentityLookupPrimesCache(t *testing.T) {
	approved := true
	user := &models.User{
		ID:         uuid.New(),
		Username:   "morgan",
		Role:       enums.UserRoleManager,
		Status:     enums.UserStatusActive,
		IsApproved: &approved,
	}
	loader := &countingLoader{users: map[uuid.UUID]*models.User{user.ID: user}}
	svc := &IdentityService{repo: loader, cache: NewIdentityCache(time.Minute, 10)}

	for i := 0; i < 3; i++ {
		dto, err := svc.Lookup(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if dto.Username != "morgan" || !dto.IsApproved {
			t.Fatalf("unexpected identity: %+v", dto)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("loader called %d times, want 1", loader.calls)
	}
}

func TestIdentityLookupRefetchesAfterInvalidate(t *testing.T) {
	user := &models.User{
		ID:     uuid.New(),
		Role:   enums.UserRoleCashier,
		Status: enums.UserStatusActive,
	}
	loader := &countingLoader{users: map[uuid.UUID]*models.User{user.ID: user}}
	cache := NewIdentityCache(time.Minute, 10)
	svc := &IdentityService{repo: loader, cache: cache}

	if _, err := svc.Lookup(context.Background(), user.ID); err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	user.Status = enums.UserStatusInactive
	cache.Invalidate(user.ID)

	dto, err := svc.Lookup(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if dto.Status != enums.UserStatusInactive {
		t.Fatalf("status = %s, want inactive", dto.Status)
	}
	if loader.calls != 2 {
		t.Fatalf("loader called %d times, want 2", loader.calls)
	}
}

func TestIdentityLookupUnknownUser(t *testing.T) {
	loader := &countingLoader{users: map[uuid.UUID]*models.User{}}
	svc := &IdentityService{repo: loader, cache: NewIdentityCache(time.Minute, 10)}

	if _, err := svc.Lookup(context.Background(), uuid.New()); err != gorm.ErrRecordNotFound {
		t.Fatalf("expected gorm.ErrRecordNotFound, got %v", err)
	}
}
