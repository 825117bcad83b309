package users

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/internal/repo"
	"github.com/posworks/posgrid-backend/pkg/db/models"
	"github.com/posworks/posgrid-backend/pkg/enums"
)

// Repository defines persistence operations for the users table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	ExistsSuperadmin(ctx context.Context) (bool, error)
	ListPending(ctx context.Context) ([]models.User, error)
	List(ctx context.Context, opts listQuery) ([]models.User, error)
	SuperadminEmails(ctx context.Context) ([]string, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateApproval(ctx context.Context, id uuid.UUID, approvedBy uuid.UUID, at time.Time) error
	UpdateRejection(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.UserStatus) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the given transaction.
func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

// Create inserts a new user and returns the persisted model.
func (r *repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.DB(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID loads a user by their UUID.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIdentifier retrieves a user matching the username or email,
// case-insensitively. Deleted records are never returned.
func (r *repository) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	value := strings.ToLower(strings.TrimSpace(identifier))
	var user models.User
	err := r.DB(ctx).
		Where("(lower(username) = ? OR lower(email) = ?) AND status <> ?", value, value, enums.UserStatusDeleted).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByUsernameOrEmail reports whether either identifier is taken.
func (r *repository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.User{}).
		Where("lower(username) = ? OR lower(email) = ?", strings.ToLower(username), strings.ToLower(email)).
		Count(&count).Error
	return count > 0, err
}

// ExistsSuperadmin reports whether any non-deleted superadmin exists.
func (r *repository) ExistsSuperadmin(ctx context.Context) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.User{}).
		Where("role = ? AND status <> ?", enums.UserRoleSuperadmin, enums.UserStatusDeleted).
		Count(&count).Error
	return count > 0, err
}

// ListPending returns non-deleted users awaiting approval.
func (r *repository) ListPending(ctx context.Context) ([]models.User, error) {
	var rows []models.User
	err := r.DB(ctx).
		Where("is_approved = ? AND status <> ?", false, enums.UserStatusDeleted).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// List returns non-deleted users using cursor pagination, newest first.
func (r *repository) List(ctx context.Context, opts listQuery) ([]models.User, error) {
	query := r.DB(ctx).
		Model(&models.User{}).
		Where("status <> ?", enums.UserStatusDeleted)

	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.User
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SuperadminEmails returns the alert recipients for security events.
func (r *repository) SuperadminEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.DB(ctx).
		Model(&models.User{}).
		Where("role = ? AND status = ?", enums.UserRoleSuperadmin, enums.UserStatusActive).
		Pluck("email", &emails).Error
	return emails, err
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// UpdateApproval records an approval decision.
func (r *repository) UpdateApproval(ctx context.Context, id uuid.UUID, approvedBy uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_approved": true,
			"approved_by": approvedBy,
			"approved_at": at,
		}).Error
}

// UpdateRejection clears approval fields and deactivates the account.
func (r *repository) UpdateRejection(ctx context.Context, id uuid.UUID) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_approved": false,
			"approved_by": nil,
			"approved_at": nil,
			"status":      enums.UserStatusInactive,
		}).Error
}

// UpdateStatus sets the account status.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.UserStatus) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("status", status).Error
}

// UpdatePasswordHash replaces the stored credential.
func (r *repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", hash).Error
}
