package middleware

import (
	"net/http"

	"github.com/posworks/posgrid-backend/api/responses"
	"github.com/posworks/posgrid-backend/pkg/authz"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/logger"
)

// Authorize allows only the listed roles through. It runs after Auth, which
// seeds the role from the identity lookup.
func Authorize(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[string(role)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[RoleFromContext(r.Context())] {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RouteAccess enforces the permission matrix's per-role route prefixes
// on top of the explicit role guards.
func RouteAccess(engine *authz.Engine, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := enums.UserRole(RoleFromContext(r.Context()))
			if engine != nil && !engine.CanAccessRoute(role, r.URL.Path) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "route not permitted for role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
