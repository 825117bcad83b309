package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/posworks/posgrid-backend/pkg/enums"
)

// SessionTerminatedEvent is emitted whenever a live session is forcibly
// ended. NewDevice carries the login that displaced it, when there is one.
type SessionTerminatedEvent struct {
	SessionID    string                  `json:"session_id"`
	UserID       uuid.UUID               `json:"user_id"`
	UserEmail    string                  `json:"user_email"`
	Username     string                  `json:"username"`
	Reason       enums.TerminationReason `json:"reason"`
	TerminatedAt time.Time               `json:"terminated_at"`
	NewDevice    *DeviceRef              `json:"new_device,omitempty"`
}

// DeviceRef describes the client device attached to a login.
type DeviceRef struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// UserRegisteredEvent signals a new account, approved or pending.
type UserRegisteredEvent struct {
	UserID      uuid.UUID      `json:"user_id"`
	Username    string         `json:"username"`
	Email       string         `json:"email"`
	Role        enums.UserRole `json:"role"`
	Approved    bool           `json:"approved"`
	CreatedByID *uuid.UUID     `json:"created_by_id,omitempty"`
}

// UserApprovedEvent is emitted when a pending account is approved.
type UserApprovedEvent struct {
	UserID       uuid.UUID      `json:"user_id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	Role         enums.UserRole `json:"role"`
	ApprovedByID uuid.UUID      `json:"approved_by_id"`
	ApprovedAt   time.Time      `json:"approved_at"`
}

// UserRejectedEvent is emitted when a pending account is rejected.
type UserRejectedEvent struct {
	UserID       uuid.UUID      `json:"user_id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	Role         enums.UserRole `json:"role"`
	RejectedByID uuid.UUID      `json:"rejected_by_id"`
	Reason       string         `json:"reason,omitempty"`
}

// UserDeletedEvent is emitted on soft delete.
type UserDeletedEvent struct {
	UserID      uuid.UUID      `json:"user_id"`
	Username    string         `json:"username"`
	Role        enums.UserRole `json:"role"`
	DeletedByID uuid.UUID      `json:"deleted_by_id"`
	DeletedAt   time.Time      `json:"deleted_at"`
}

// PasswordResetEvent is emitted after a successful password reset, once the
// user's other sessions have been queued for termination.
type PasswordResetEvent struct {
	UserID             uuid.UUID `json:"user_id"`
	Email              string    `json:"email"`
	ResetAt            time.Time `json:"reset_at"`
	SessionsTerminated int       `json:"sessions_terminated"`
}
