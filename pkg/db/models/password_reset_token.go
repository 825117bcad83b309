package models

import (
	"time"

	"github.com/google/uuid"
)

// PasswordResetToken is a persisted single-use reset credential.
type PasswordResetToken struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	Token     string     `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time  `gorm:"column:expires_at;not null;index"`
	Used      bool       `gorm:"column:used;not null;default:false"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	IPAddress string     `gorm:"column:ip_address"`
	UserAgent string     `gorm:"column:user_agent"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Valid reports whether the token can still redeem a reset at the given time.
func (t *PasswordResetToken) Valid(now time.Time) bool {
	if t == nil {
		return false
	}
	return !t.Used && now.Before(t.ExpiresAt)
}
