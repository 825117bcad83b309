package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/posworks/posgrid-backend/pkg/enums"
)

// User represents the canonical identity entity.
//
// IsApproved is nullable on purpose: records predating the approval flow
// carry NULL and are treated as approved. Approved() owns that rule.
type User struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Username     string           `gorm:"type:text;not null;uniqueIndex"`
	Email        string           `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string           `gorm:"column:password_hash;not null"`
	FirstName    string           `gorm:"column:first_name;not null"`
	LastName     string           `gorm:"column:last_name;not null"`
	Role         enums.UserRole   `gorm:"column:role;type:text;not null"`
	Status       enums.UserStatus `gorm:"column:status;type:text;not null;default:active"`
	IsApproved   *bool            `gorm:"column:is_approved"`
	ApprovedBy   *uuid.UUID       `gorm:"column:approved_by;type:uuid"`
	ApprovedAt   *time.Time       `gorm:"column:approved_at"`
	CreatedBy    *uuid.UUID       `gorm:"column:created_by;type:uuid"`
	LastLoginAt  *time.Time       `gorm:"column:last_login_at"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// Approved reports whether the account may authenticate. A nil IsApproved is
// the legacy shim: pre-approval records are implicitly approved.
func (u *User) Approved() bool {
	if u == nil {
		return false
	}
	return u.IsApproved == nil || *u.IsApproved
}
