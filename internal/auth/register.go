package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/internal/users"
	"github.com/posworks/posgrid-backend/pkg/authz"
	"github.com/posworks/posgrid-backend/pkg/config"
	dbpkg "github.com/posworks/posgrid-backend/pkg/db"
	"github.com/posworks/posgrid-backend/pkg/db/models"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/outbox"
	"github.com/posworks/posgrid-backend/pkg/outbox/payloads"
	"github.com/posworks/posgrid-backend/pkg/security"
)

// RegisterService creates accounts. Self-service registrations are always
// cashiers pending approval; authenticated creation goes through the
// authorization matrix, which also decides auto-approval.
type RegisterService interface {
	Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	AdminCreate(ctx context.Context, creator CreatorContext, req AdminCreateRequest) (*RegisterResponse, error)
}

type registerService struct {
	repo     users.Repository
	tx       txRunner
	outbox   outboxEmitter
	engine   *authz.Engine
	password config.PasswordConfig
	now      func() time.Time
}

// RegisterServiceParams bundles the dependencies for account creation.
type RegisterServiceParams struct {
	Repo     users.Repository
	Tx       txRunner
	Outbox   outboxEmitter
	Engine   *authz.Engine
	Password config.PasswordConfig
}

// NewRegisterService constructs the registration service.
func NewRegisterService(params RegisterServiceParams) (RegisterService, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter is required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("authorization engine is required")
	}
	return &registerService{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		engine:   params.Engine,
		password: params.Password,
		now:      time.Now,
	}, nil
}

// Register creates a pending cashier account from a self-service signup.
func (s *registerService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	pending := false
	return s.create(ctx, createSpec{
		username:  req.Username,
		email:     req.Email,
		password:  req.Password,
		firstName: req.FirstName,
		lastName:  req.LastName,
		role:      enums.UserRoleCashier,
		approved:  &pending,
	})
}

// AdminCreate creates an account on behalf of an authenticated caller. The
// matrix decides both whether the creator may create the target role and
// whether the account starts approved.
func (s *registerService) AdminCreate(ctx context.Context, creator CreatorContext, req AdminCreateRequest) (*RegisterResponse, error) {
	if !req.Role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown role")
	}
	if !s.engine.HasPermission(creator.Role, authz.ActionCreate, req.Role) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient permissions to create this role")
	}

	approved := s.engine.ShouldAutoApprove(creator.Role, req.Role)
	spec := createSpec{
		username:  req.Username,
		email:     req.Email,
		password:  req.Password,
		firstName: req.FirstName,
		lastName:  req.LastName,
		role:      req.Role,
		approved:  &approved,
		createdBy: &creator.UserID,
	}
	if approved {
		spec.approvedBy = &creator.UserID
	}
	return s.create(ctx, spec)
}

type createSpec struct {
	username   string
	email      string
	password   string
	firstName  string
	lastName   string
	role       enums.UserRole
	approved   *bool
	approvedBy *uuid.UUID
	createdBy  *uuid.UUID
}

func (s *registerService) create(ctx context.Context, spec createSpec) (*RegisterResponse, error) {
	// Stored identifiers are canonical: trimmed, email lowercased. Lookups
	// lowercase both sides, so this only keeps the rows matching what the
	// indexes enforce.
	username := strings.TrimSpace(spec.username)
	email := strings.ToLower(strings.TrimSpace(spec.email))

	taken, err := s.repo.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check username and email")
	}
	if taken {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "username or email is already in use")
	}

	hash, err := security.HashPassword(spec.password, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	now := s.now().UTC()
	dto := users.CreateUserDTO{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    spec.firstName,
		LastName:     spec.lastName,
		Role:         spec.role,
		IsApproved:   spec.approved,
		CreatedBy:    spec.createdBy,
	}
	if spec.approved != nil && *spec.approved && spec.approvedBy != nil {
		dto.ApprovedBy = spec.approvedBy
		dto.ApprovedAt = &now
	}

	var created *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// Checked inside the transaction so two concurrent superadmin
		// creations cannot both pass the gate.
		if spec.role == enums.UserRoleSuperadmin {
			exists, err := repo.ExistsSuperadmin(ctx)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check superadmin existence")
			}
			if exists {
				return pkgerrors.New(pkgerrors.CodeConflict, "a superadmin account already exists")
			}
		}
		user, err := repo.Create(ctx, dto)
		if err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "username or email is already in use")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
		}
		created = user
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventUserRegistered,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Version:       1,
			Data: payloads.UserRegisteredEvent{
				UserID:      user.ID,
				Username:    user.Username,
				Email:       user.Email,
				Role:        user.Role,
				Approved:    user.Approved(),
				CreatedByID: spec.createdBy,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return &RegisterResponse{
		User:             users.FromModel(created),
		RequiresApproval: !created.Approved(),
	}, nil
}
