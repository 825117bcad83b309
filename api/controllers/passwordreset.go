package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/posworks/posgrid-backend/api/responses"
	"github.com/posworks/posgrid-backend/api/validators"
	"github.com/posworks/posgrid-backend/internal/passwordreset"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/logger"
)

type forgotPasswordBody struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordBody struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

// forgotPasswordResult is returned regardless of whether the email maps
// to an account, so callers cannot probe for registered addresses.
var forgotPasswordResult = map[string]string{
	"status": "ok",
	"detail": "if the email is registered, a reset link has been sent",
}

// AuthForgotPassword starts the password reset flow.
func AuthForgotPassword(svc passwordreset.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "password reset service unavailable"))
			return
		}

		var body forgotPasswordBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		device := requestDevice(r)
		if err := svc.Request(r.Context(), body.Email, device.IPAddress, device.UserAgent); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, forgotPasswordResult)
	}
}

// AuthVerifyResetToken reports whether a reset token is still redeemable.
func AuthVerifyResetToken(svc passwordreset.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "password reset service unavailable"))
			return
		}

		token := strings.TrimSpace(chi.URLParam(r, "token"))
		if err := svc.Verify(r.Context(), token); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "valid"})
	}
}

// AuthResetPassword redeems a reset token and revokes every session.
func AuthResetPassword(svc passwordreset.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "password reset service unavailable"))
			return
		}

		var body resetPasswordBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Reset(r.Context(), body.Token, body.NewPassword); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "password_updated"})
	}
}
