package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/internal/users"
	"github.com/posworks/posgrid-backend/pkg/auth/session"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/db/models"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/logger"
	"github.com/posworks/posgrid-backend/pkg/mailer"
	"github.com/posworks/posgrid-backend/pkg/outbox"
	"github.com/posworks/posgrid-backend/pkg/outbox/payloads"
	"github.com/posworks/posgrid-backend/pkg/security"
)

// Service runs the forgot-password flow. Request never reveals whether an
// email is registered; the caller always sees the same generic outcome
// unless mail delivery itself fails.
type Service interface {
	Request(ctx context.Context, email, ipAddress, userAgent string) error
	Verify(ctx context.Context, token string) error
	Reset(ctx context.Context, token, newPassword string) error
	HasRecentAttempts(ctx context.Context, email string, window time.Duration) (bool, error)
	Purge(ctx context.Context) (int64, error)
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

type sessionRegistry interface {
	UserSessions(ctx context.Context, userID uuid.UUID) ([]*session.Session, error)
	DeactivateAll(ctx context.Context, userID uuid.UUID) (int, error)
}

type service struct {
	repo     Repository
	userRepo users.Repository
	tx       txRunner
	outbox   outboxEmitter
	cache    identityCache
	registry sessionRegistry
	mail     mailer.Sender
	logg     *logger.Logger
	cfg      config.PasswordResetConfig
	password config.PasswordConfig
	now      func() time.Time
}

// ServiceParams bundles the dependencies of the reset service.
type ServiceParams struct {
	Repo     Repository
	UserRepo users.Repository
	Tx       txRunner
	Outbox   outboxEmitter
	Cache    identityCache
	Registry sessionRegistry
	Mail     mailer.Sender
	Logger   *logger.Logger
	Reset    config.PasswordResetConfig
	Password config.PasswordConfig
}

// NewService constructs the password reset service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("reset token repository is required")
	}
	if params.UserRepo == nil {
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
	if params.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if params.Mail == nil {
		return nil, fmt.Errorf("mail sender is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if params.Reset.TokenTTL <= 0 {
		return nil, fmt.Errorf("reset token ttl must be positive")
	}
	return &service{
		repo:     params.Repo,
		userRepo: params.UserRepo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		cache:    params.Cache,
		registry: params.Registry,
		mail:     params.Mail,
		logg:     params.Logger,
		cfg:      params.Reset,
		password: params.Password,
		now:      time.Now,
	}, nil
}

// Request issues a reset token and emails it to the account owner. Unknown
// emails and rate-limited repeats both return nil so the endpoint cannot be
// used to probe which addresses are registered. Mail delivery failure rolls
// the token back and surfaces an error, since the caller would otherwise
// wait for an email that never comes.
func (s *service) Request(ctx context.Context, email, ipAddress, userAgent string) error {
	user, err := s.userRepo.FindByIdentifier(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up account")
	}

	now := s.now().UTC()
	recent, err := s.repo.CountRecent(ctx, user.ID, now.Add(-s.cfg.ResendWindow))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check recent reset attempts")
	}
	if recent > 0 {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"user_id": user.ID.String(),
			"window":  s.cfg.ResendWindow.String(),
		})
		s.logg.Warn(lctx, "password reset request suppressed by resend window")
		return nil
	}

	raw, err := security.GenerateResetToken()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reset token")
	}
	token := &models.PasswordResetToken{
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.InvalidateUnused(ctx, user.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate previous tokens")
		}
		return repo.Insert(ctx, token)
	})
	if err != nil {
		return err
	}

	if err := s.mail.Send(ctx, resetEmail(s.cfg.ResetURLBase, user.Email, raw, s.cfg.TokenTTL)); err != nil {
		if delErr := s.repo.DeleteByID(ctx, token.ID); delErr != nil {
			s.logg.Error(ctx, "rolling back undelivered reset token", delErr)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send reset email")
	}
	return nil
}

// Verify reports whether the token can still redeem a reset.
func (s *service) Verify(ctx context.Context, token string) error {
	_, err := s.lookupValid(ctx, token)
	return err
}

// Reset redeems the token, replaces the password, and revokes every live
// session. Terminated-session events are written before the registry revoke
// so the security notification cannot be lost.
func (s *service) Reset(ctx context.Context, token, newPassword string) error {
	row, err := s.lookupValid(ctx, token)
	if err != nil {
		return err
	}

	user, err := s.userRepo.FindByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired reset token")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up account")
	}

	same, err := security.VerifyPassword(newPassword, user.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compare password")
	}
	if same {
		return pkgerrors.New(pkgerrors.CodeValidation, "new password must differ from the current password")
	}

	hash, err := security.HashPassword(newPassword, s.password)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	sessions, err := s.registry.UserSessions(ctx, user.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sessions")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).UpdatePasswordHash(ctx, user.ID, hash); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
		}
		repo := s.repo.WithTx(tx)
		if err := repo.MarkUsed(ctx, row.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark token used")
		}
		if err := repo.InvalidateUnused(ctx, user.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate remaining tokens")
		}
		for _, sess := range sessions {
			event := outbox.DomainEvent{
				EventType:     enums.EventSessionTerminated,
				AggregateType: enums.AggregateSession,
				AggregateID:   user.ID,
				Version:       1,
				Data: payloads.SessionTerminatedEvent{
					SessionID:    sess.ID,
					UserID:       user.ID,
					UserEmail:    user.Email,
					Username:     user.Username,
					Reason:       enums.TerminationPasswordReset,
					TerminatedAt: now,
				},
			}
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPasswordReset,
			AggregateType: enums.AggregateUser,
			AggregateID:   user.ID,
			Version:       1,
			Data: payloads.PasswordResetEvent{
				UserID:             user.ID,
				Email:              user.Email,
				ResetAt:            now,
				SessionsTerminated: len(sessions),
			},
		})
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(user.ID)
	if _, err := s.registry.DeactivateAll(ctx, user.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke sessions")
	}
	return nil
}

// HasRecentAttempts reports whether the account issued a token inside the
// window. Unknown emails report false.
func (s *service) HasRecentAttempts(ctx context.Context, email string, window time.Duration) (bool, error) {
	user, err := s.userRepo.FindByIdentifier(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up account")
	}
	count, err := s.repo.CountRecent(ctx, user.ID, s.now().UTC().Add(-window))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count reset attempts")
	}
	return count > 0, nil
}

// Purge deletes used and expired token rows.
func (s *service) Purge(ctx context.Context) (int64, error) {
	return s.repo.PurgeStale(ctx, s.now().UTC())
}

func (s *service) lookupValid(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired reset token")
	}
	row, err := s.repo.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired reset token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up reset token")
	}
	if !row.Valid(s.now().UTC()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid or expired reset token")
	}
	return row, nil
}

func resetEmail(baseURL, to, token string, ttl time.Duration) mailer.Message {
	link := fmt.Sprintf("%s?token=%s", baseURL, token)
	return mailer.Message{
		To:      to,
		Subject: "Reset your PosGrid password",
		TextBody: fmt.Sprintf(
			"A password reset was requested for your account.\n\nReset link (valid for %s): %s\n\nIf you did not request this, you can ignore this email.",
			ttl, link,
		),
		HTMLBody: fmt.Sprintf(
			`<p>A password reset was requested for your account.</p><p><a href=%q>Reset your password</a> (valid for %s).</p><p>If you did not request this, you can ignore this email.</p>`,
			link, ttl,
		),
	}
}
