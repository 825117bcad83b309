package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/posworks/posgrid-backend/pkg/enums"
)

// Token types carried in the token_type claim so an access token can never
// be replayed against the refresh endpoint or vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// AccessTokenPayload captures the data available when minting an access JWT.
type AccessTokenPayload struct {
	UserID    uuid.UUID
	Username  string
	Role      enums.UserRole
	SessionID string
}

// AccessTokenClaims represents the typed access JWT issued to clients.
type AccessTokenClaims struct {
	UserID    uuid.UUID      `json:"user_id"`
	Username  string         `json:"username"`
	Role      enums.UserRole `json:"role"`
	SessionID string         `json:"session_id"`
	TokenType string         `json:"token_type"`
	jwt.RegisteredClaims
}

// RefreshTokenClaims carries only the identifiers needed to re-issue an
// access token. Role and username are resolved fresh on refresh.
type RefreshTokenClaims struct {
	UserID    uuid.UUID `json:"user_id"`
	SessionID string    `json:"session_id"`
	TokenType string    `json:"token_type"`
	jwt.RegisteredClaims
}
