package passwordreset

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/internal/repo"
	"github.com/posworks/posgrid-backend/pkg/db/models"
)

// Repository persists single-use reset tokens.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, token *models.PasswordResetToken) error
	FindByToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	InvalidateUnused(ctx context.Context, userID uuid.UUID) error
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteByID(ctx context.Context, id uuid.UUID) error
	CountRecent(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	PurgeStale(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	repo.Base
}

// NewRepository constructs a reset token repository over the given handle.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

func (r *repository) Insert(ctx context.Context, token *models.PasswordResetToken) error {
	return r.DB(ctx).Create(token).Error
}

func (r *repository) FindByToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	var row models.PasswordResetToken
	err := r.DB(ctx).
		Where("token = ?", token).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// InvalidateUnused marks every outstanding unused token for the user as used
// so only the newest issued token can redeem a reset.
func (r *repository) InvalidateUnused(ctx context.Context, userID uuid.UUID) error {
	now := time.Now().UTC()
	return r.DB(ctx).
		Model(&models.PasswordResetToken{}).
		Where("user_id = ? AND used = false", userID).
		Updates(map[string]interface{}{"used": true, "used_at": now}).Error
}

func (r *repository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.PasswordResetToken{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"used": true, "used_at": at}).Error
}

func (r *repository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Where("id = ?", id).
		Delete(&models.PasswordResetToken{}).Error
}

func (r *repository) CountRecent(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.PasswordResetToken{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return count, err
}

// PurgeStale removes used tokens and tokens past their expiry. It returns the
// number of deleted rows for the cron job's log line.
func (r *repository) PurgeStale(ctx context.Context, now time.Time) (int64, error) {
	result := r.DB(ctx).
		Where("used = true OR expires_at < ?", now).
		Delete(&models.PasswordResetToken{})
	return result.RowsAffected, result.Error
}
