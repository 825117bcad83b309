package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/pkg/authz"
	"github.com/posworks/posgrid-backend/pkg/db/models"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/outbox"
	"github.com/posworks/posgrid-backend/pkg/outbox/payloads"
	pkgpagination "github.com/posworks/posgrid-backend/pkg/pagination"
)

// Service drives the account approval state machine: pending accounts are
// approved or rejected, active accounts can be soft deleted. Deleted is
// terminal.
type Service interface {
	Approve(ctx context.Context, actor Actor, targetID uuid.UUID) (*UserDTO, error)
	Reject(ctx context.Context, actor Actor, targetID uuid.UUID, reason string) error
	Delete(ctx context.Context, actor Actor, targetID uuid.UUID) error
	ListPending(ctx context.Context) ([]UserDTO, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	GetByID(ctx context.Context, id uuid.UUID) (*UserDTO, error)
}

// Actor identifies who is performing a management operation.
type Actor struct {
	UserID    uuid.UUID
	Role      enums.UserRole
	SessionID string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type identityCache interface {
	Invalidate(id uuid.UUID)
}

type sessionTerminator interface {
	DeactivateAll(ctx context.Context, userID uuid.UUID) (int, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxEmitter
	cache    identityCache
	sessions sessionTerminator
	engine   *authz.Engine
	now      func() time.Time
}

// ServiceParams bundles the dependencies required to build a users service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxEmitter
	Cache    identityCache
	Sessions sessionTerminator
	Engine   *authz.Engine
}

// NewService constructs the user management service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("identity cache is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("authorization engine is required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		cache:    params.Cache,
		sessions: params.Sessions,
		engine:   params.Engine,
		now:      time.Now,
	}, nil
}

func (s *service) Approve(ctx context.Context, actor Actor, targetID uuid.UUID) (*UserDTO, error) {
	target, err := s.loadTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if !s.engine.HasPermission(actor.Role, authz.ActionApprove, target.Role) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient permissions")
	}
	if target.Approved() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "account is not pending approval")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateApproval(ctx, target.ID, actor.UserID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record approval")
		}
		if target.Status != enums.UserStatusActive {
			if err := repo.UpdateStatus(ctx, target.ID, enums.UserStatusActive); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reactivate account")
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserApproved,
			AggregateType: enums.AggregateUser,
			AggregateID:   target.ID,
			Version:       1,
			Actor:         actorRef(actor),
			Data: payloads.UserApprovedEvent{
				UserID:       target.ID,
				Username:     target.Username,
				Email:        target.Email,
				Role:         target.Role,
				ApprovedByID: actor.UserID,
				ApprovedAt:   now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(target.ID)

	approved := true
	target.IsApproved = &approved
	target.ApprovedBy = &actor.UserID
	target.ApprovedAt = &now
	target.Status = enums.UserStatusActive
	return FromModel(target), nil
}

func (s *service) Reject(ctx context.Context, actor Actor, targetID uuid.UUID, reason string) error {
	target, err := s.loadTarget(ctx, targetID)
	if err != nil {
		return err
	}
	if !s.engine.HasPermission(actor.Role, authz.ActionApprove, target.Role) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient permissions")
	}
	if target.Approved() {
		return pkgerrors.New(pkgerrors.CodeConflict, "account is not pending approval")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateRejection(ctx, target.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record rejection")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserRejected,
			AggregateType: enums.AggregateUser,
			AggregateID:   target.ID,
			Version:       1,
			Actor:         actorRef(actor),
			Data: payloads.UserRejectedEvent{
				UserID:       target.ID,
				Username:     target.Username,
				Email:        target.Email,
				Role:         target.Role,
				RejectedByID: actor.UserID,
				Reason:       reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(target.ID)
	if _, err := s.sessions.DeactivateAll(ctx, target.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "terminate sessions")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, actor Actor, targetID uuid.UUID) error {
	target, err := s.loadTarget(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == enums.UserRoleSuperadmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "superadmin accounts cannot be deleted")
	}
	if !s.engine.HasPermission(actor.Role, authz.ActionManage, target.Role) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "insufficient permissions")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateStatus(ctx, target.ID, enums.UserStatusDeleted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete account")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserDeleted,
			AggregateType: enums.AggregateUser,
			AggregateID:   target.ID,
			Version:       1,
			Actor:         actorRef(actor),
			Data: payloads.UserDeletedEvent{
				UserID:      target.ID,
				Username:    target.Username,
				Role:        target.Role,
				DeletedByID: actor.UserID,
				DeletedAt:   now,
			},
		})
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(target.ID)
	if _, err := s.sessions.DeactivateAll(ctx, target.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "terminate sessions")
	}
	return nil
}

func (s *service) ListPending(ctx context.Context) ([]UserDTO, error) {
	rows, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending users")
	}
	return toDTOs(rows), nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	limit := pkgpagination.NormalizeLimit(params.Limit)
	query := listQuery{limit: pkgpagination.LimitWithBuffer(params.Limit)}
	if params.Cursor != "" {
		cursor, err := pkgpagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}

	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		nextCursor = pkgpagination.EncodeCursor(pkgpagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}

	users := toDTOs(rows)
	return &ListResult{
		Users:  users,
		Count:  len(users),
		Cursor: nextCursor,
	}, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.loadTarget(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(user), nil
}

func (s *service) loadTarget(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if user.Status == enums.UserStatusDeleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return user, nil
}

func toDTOs(rows []models.User) []UserDTO {
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:    actor.UserID,
		SessionID: actor.SessionID,
		Role:      string(actor.Role),
	}
}
