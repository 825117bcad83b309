package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/api/responses"
	"github.com/posworks/posgrid-backend/internal/users"
	pkgAuth "github.com/posworks/posgrid-backend/pkg/auth"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/logger"
)

// IdentityLookup resolves the current account state for a user ID. The
// cached implementation in internal/users backs this in production.
type IdentityLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (*users.UserDTO, error)
}

// SessionToucher reports session liveness, refreshing activity on success.
type SessionToucher interface {
	Touch(ctx context.Context, id string) (bool, error)
}

// Auth validates a bearer token, checks the account is still allowed in,
// confirms the session is live, and seeds the request context. The account
// state comes from the identity lookup rather than the token, so
// deactivation and approval changes take effect within the cache TTL
// instead of the token lifetime.
func Auth(cfg config.JWTConfig, identities IdentityLookup, sessions SessionToucher, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.SessionID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			user, err := identities.Lookup(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account no longer exists"))
					return
				}
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up account"))
				return
			}
			switch user.Status {
			case enums.UserStatusDeleted:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account no longer exists"))
				return
			case enums.UserStatusInactive:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeAccountDeactivated, "account is deactivated"))
				return
			}
			if !user.IsApproved {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodePendingApproval, "account is pending approval"))
				return
			}

			if sessions != nil {
				live, err := sessions.Touch(r.Context(), claims.SessionID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !live {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session expired or revoked"))
					return
				}
			}

			ctx := context.WithValue(r.Context(), ctxUserID, user.ID.String())
			ctx = context.WithValue(ctx, ctxRole, string(user.Role))
			ctx = context.WithValue(ctx, ctxSessionID, claims.SessionID)

			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    user.ID.String(),
					"actor_role": string(user.Role),
				})
				ctx = logg.WithSessionID(ctx, claims.SessionID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
