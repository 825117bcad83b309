package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/posworks/posgrid-backend/pkg/db/models"
	"github.com/posworks/posgrid-backend/pkg/enums"
)

// UserDTO is the transport shape that omits the password hash.
type UserDTO struct {
	ID          uuid.UUID        `json:"id"`
	Username    string           `json:"username"`
	Email       string           `json:"email"`
	FirstName   string           `json:"first_name"`
	LastName    string           `json:"last_name"`
	Role        enums.UserRole   `json:"role"`
	Status      enums.UserStatus `json:"status"`
	IsApproved  bool             `json:"is_approved"`
	ApprovedBy  *uuid.UUID       `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time       `json:"approved_at,omitempty"`
	LastLoginAt *time.Time       `json:"last_login_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         enums.UserRole
	IsApproved   *bool
	ApprovedBy   *uuid.UUID
	ApprovedAt   *time.Time
	CreatedBy    *uuid.UUID
}

// FromModel converts a persisted user into its transport shape.
func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Role:        u.Role,
		Status:      u.Status,
		IsApproved:  u.Approved(),
		ApprovedBy:  u.ApprovedBy,
		ApprovedAt:  u.ApprovedAt,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// ToModel maps the creation DTO onto a fresh model.
func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Username:     c.Username,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Role:         c.Role,
		Status:       enums.UserStatusActive,
		IsApproved:   c.IsApproved,
		ApprovedBy:   c.ApprovedBy,
		ApprovedAt:   c.ApprovedAt,
		CreatedBy:    c.CreatedBy,
	}
}
