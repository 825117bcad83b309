package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/internal/users"
	"github.com/posworks/posgrid-backend/pkg/auth"
	"github.com/posworks/posgrid-backend/pkg/auth/session"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/db/models"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/outbox"
	"github.com/posworks/posgrid-backend/pkg/outbox/payloads"
	"github.com/posworks/posgrid-backend/pkg/security"
)

// Service authenticates credentials and manages the token/session lifecycle.
// One live session per user: a new login displaces every previous one, and
// the displaced sessions are notified before they are revoked.
type Service interface {
	Login(ctx context.Context, req LoginRequest, device session.DeviceInfo) (*LoginResponse, error)
	Refresh(ctx context.Context, req RefreshRequest) (*RefreshResponse, error)
	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, userID uuid.UUID) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type sessionRegistry interface {
	Create(ctx context.Context, userID uuid.UUID, id string, device session.DeviceInfo) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Deactivate(ctx context.Context, id string) error
	DeactivateAll(ctx context.Context, userID uuid.UUID) (int, error)
	UserSessions(ctx context.Context, userID uuid.UUID) ([]*session.Session, error)
}

type service struct {
	repo     users.Repository
	tx       txRunner
	outbox   outboxEmitter
	registry sessionRegistry
	jwt      config.JWTConfig
	now      func() time.Time
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Repo     users.Repository
	Tx       txRunner
	Outbox   outboxEmitter
	Registry sessionRegistry
	JWT      config.JWTConfig
}

// NewService constructs the authentication service.
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
	if params.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if params.JWT.AccessSecret == "" || params.JWT.RefreshSecret == "" {
		return nil, fmt.Errorf("jwt secrets are required")
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		registry: params.Registry,
		jwt:      params.JWT,
		now:      time.Now,
	}, nil
}

// Login verifies the credentials and issues a fresh session with a token
// pair. Credential failures are deliberately indistinguishable from unknown
// identifiers. Displaced sessions get a session_terminated event written in
// the same transaction as the login bookkeeping, before the registry revokes
// them, so the notification cannot be lost to a crash between the two steps.
func (s *service) Login(ctx context.Context, req LoginRequest, device session.DeviceInfo) (*LoginResponse, error) {
	user, err := s.repo.FindByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up account")
	}

	ok, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	if err := loginEligible(user); err != nil {
		return nil, err
	}

	displaced, err := s.registry.UserSessions(ctx, user.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list existing sessions")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record login")
		}
		for _, old := range displaced {
			event := outbox.DomainEvent{
				EventType:     enums.EventSessionTerminated,
				AggregateType: enums.AggregateSession,
				AggregateID:   user.ID,
				Version:       1,
				Data: payloads.SessionTerminatedEvent{
					SessionID:    old.ID,
					UserID:       user.ID,
					UserEmail:    user.Email,
					Username:     user.Username,
					Reason:       enums.TerminationConcurrentLogin,
					TerminatedAt: now,
					NewDevice: &payloads.DeviceRef{
						IPAddress: device.IPAddress,
						UserAgent: device.UserAgent,
					},
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(displaced) > 0 {
		if _, err := s.registry.DeactivateAll(ctx, user.ID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke displaced sessions")
		}
	}

	sessionID, err := session.NewSessionID()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate session id")
	}
	sess, err := s.registry.Create(ctx, user.ID, sessionID, device)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}

	accessToken, err := auth.MintAccessToken(s.jwt, now, auth.AccessTokenPayload{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sess.ID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	refreshToken, err := auth.MintRefreshToken(s.jwt, now, user.ID, sess.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint refresh token")
	}

	user.LastLoginAt = &now
	return &LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sess.ID,
		User:         users.FromModel(user),
		Session:      sess,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token bound to
// the same session. The session must still be live and the account must
// still be allowed to log in.
func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResponse, error) {
	claims, err := auth.ParseRefreshToken(s.jwt, req.RefreshToken)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
	}

	sess, err := s.registry.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired or revoked")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session")
	}
	if sess.UserID != claims.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session does not belong to token subject")
	}

	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account no longer exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up account")
	}
	if err := loginEligible(user); err != nil {
		return nil, err
	}

	accessToken, err := auth.MintAccessToken(s.jwt, s.now().UTC(), auth.AccessTokenPayload{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sess.ID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	return &RefreshResponse{AccessToken: accessToken}, nil
}

// Logout revokes a single session. Revoking an already dead session is not
// an error.
func (s *service) Logout(ctx context.Context, sessionID string) error {
	if err := s.registry.Deactivate(ctx, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// LogoutAll revokes every live session the user has, returning how many
// were revoked.
func (s *service) LogoutAll(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := s.registry.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}
	return count, nil
}

// loginEligible enforces the status and approval gates shared by login and
// refresh. Deleted accounts are filtered out at the repository layer, so the
// remaining gates are deactivation and pending approval.
func loginEligible(user *models.User) error {
	switch user.Status {
	case enums.UserStatusDeleted:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	case enums.UserStatusInactive:
		return pkgerrors.New(pkgerrors.CodeAccountDeactivated, "account is deactivated")
	}
	if !user.Approved() {
		return pkgerrors.New(pkgerrors.CodePendingApproval, "account is pending approval")
	}
	return nil
}
