package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/posworks/posgrid-backend/api/middleware"
	"github.com/posworks/posgrid-backend/api/responses"
	"github.com/posworks/posgrid-backend/pkg/auth/session"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/logger"
)

// SessionDirectory is the slice of the session registry the HTTP layer
// reads from.
type SessionDirectory interface {
	UserSessions(ctx context.Context, userID uuid.UUID) ([]*session.Session, error)
	Stats(ctx context.Context) (session.Stats, error)
}

// SessionsListMine returns the caller's active sessions, newest first.
func SessionsListMine(registry SessionDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if registry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session registry unavailable"))
			return
		}

		userID, err := middleware.RequireUserID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessions, err := registry.UserSessions(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sessions"))
			return
		}

		current := middleware.SessionIDFromContext(r.Context())
		type sessionView struct {
			*session.Session
			Current bool `json:"current"`
		}
		views := make([]sessionView, 0, len(sessions))
		for _, s := range sessions {
			views = append(views, sessionView{Session: s, Current: s.ID == current})
		}

		responses.WriteSuccess(w, map[string]any{"sessions": views, "count": len(views)})
	}
}

// SessionsStats reports registry-wide session counts.
func SessionsStats(registry SessionDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if registry == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session registry unavailable"))
			return
		}

		stats, err := registry.Stats(r.Context())
		if err != nil {
			if errors.Is(err, session.ErrSnapshotUnsupported) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "session stats are not available on this backend"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "session stats"))
			return
		}

		responses.WriteSuccess(w, stats)
	}
}
