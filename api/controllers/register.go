package controllers

import (
	"net/http"

	"github.com/posworks/posgrid-backend/api/middleware"
	"github.com/posworks/posgrid-backend/api/responses"
	"github.com/posworks/posgrid-backend/api/validators"
	"github.com/posworks/posgrid-backend/internal/auth"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/logger"
)

// AuthRegister handles self-service signups. New accounts land in the
// pending-approval state.
func AuthRegister(svc auth.RegisterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "registration service unavailable"))
			return
		}

		var body auth.RegisterRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Register(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// UsersCreate handles authenticated account creation. The permission
// matrix decides which roles the caller may create and whether the new
// account skips the approval queue.
func UsersCreate(svc auth.RegisterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "registration service unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body auth.AdminCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		creator := auth.CreatorContext{
			UserID: userID,
			Role:   enums.UserRole(middleware.RoleFromContext(r.Context())),
		}

		result, err := svc.AdminCreate(r.Context(), creator, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
