package auth

import (
	"github.com/google/uuid"

	"github.com/posworks/posgrid-backend/internal/users"
	"github.com/posworks/posgrid-backend/pkg/auth/session"
	"github.com/posworks/posgrid-backend/pkg/enums"
)

// LoginRequest captures the credentials sent to the login endpoint. The
// identifier matches either username or email.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// LoginResponse contains the token pair, session, and password-stripped user.
type LoginResponse struct {
	AccessToken  string           `json:"access_token"`
	RefreshToken string           `json:"refresh_token"`
	SessionID    string           `json:"session_id"`
	User         *users.UserDTO   `json:"user"`
	Session      *session.Session `json:"session"`
}

// RefreshRequest carries the refresh token presented for rotation.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshResponse contains the new access token bound to the same session.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// RegisterRequest is the self-service registration payload. Self-registered
// accounts are always cashiers pending approval.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// AdminCreateRequest is the authenticated account-creation payload.
type AdminCreateRequest struct {
	Username  string         `json:"username" validate:"required,min=3,max=64"`
	Email     string         `json:"email" validate:"required,email"`
	Password  string         `json:"password" validate:"required,min=8"`
	FirstName string         `json:"first_name" validate:"required"`
	LastName  string         `json:"last_name" validate:"required"`
	Role      enums.UserRole `json:"role" validate:"required"`
}

// RegisterResponse reports the created account and whether it still needs
// approval before it can log in.
type RegisterResponse struct {
	User             *users.UserDTO `json:"user"`
	RequiresApproval bool           `json:"requires_approval"`
}

// CreatorContext identifies the authenticated creator for admin creation.
type CreatorContext struct {
	UserID uuid.UUID
	Role   enums.UserRole
}
