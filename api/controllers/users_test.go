package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/posworks/posgrid-backend/api/middleware"
	"github.com/posworks/posgrid-backend/internal/users"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
)

type stubUsersService struct {
	approved   []uuid.UUID
	rejected   []uuid.UUID
	lastReason string
	deleted    []uuid.UUID
	lastActor  users.Actor
	pending    []users.UserDTO
	all        []users.UserDTO
	listParams *users.ListParams
	err        error
}

func (s *stubUsersService) Approve(_ context.Context, actor users.Actor, targetID uuid.UUID) (*users.UserDTO, error) {
	s.lastActor = actor
	if s.err != nil {
		return nil, s.err
	}
	s.approved = append(s.approved, targetID)
	return &users.UserDTO{ID: targetID, IsApproved: true, Status: enums.UserStatusActive}, nil
}

func (s *stubUsersService) Reject(_ context.Context, actor users.Actor, targetID uuid.UUID, reason string) error {
	s.lastActor = actor
	s.lastReason = reason
	if s.err != nil {
		return s.err
	}
	s.rejected = append(s.rejected, targetID)
	return nil
}

func (s *stubUsersService) Delete(_ context.Context, actor users.Actor, targetID uuid.UUID) error {
	s.lastActor = actor
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, targetID)
	return nil
}

func (s *stubUsersService) ListPending(context.Context) ([]users.UserDTO, error) {
	return s.pending, s.err
}

func (s *stubUsersService) List(_ context.Context, params users.ListParams) (*users.ListResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.listParams = &params
	return &users.ListResult{Users: s.all, Count: len(s.all)}, nil
}

func (s *stubUsersService) GetByID(_ context.Context, id uuid.UUID) (*users.UserDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &users.UserDTO{ID: id}, nil
}

func adminRequest(method, path string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	ctx := middleware.WithUserID(req.Context(), uuid.NewString())
	ctx = middleware.WithRole(ctx, string(enums.UserRoleSuperadmin))
	ctx = middleware.WithSessionID(ctx, "sess-admin")
	return req.WithContext(ctx)
}

func usersRouter(svc users.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/users", UsersList(svc, nil))
	r.Get("/api/v1/users/pending", UsersListPending(svc, nil))
	r.Get("/api/v1/users/{userId}", UsersGet(svc, nil))
	r.Post("/api/v1/users/{userId}/approve", UsersApprove(svc, nil))
	r.Post("/api/v1/users/{userId}/reject", UsersReject(svc, nil))
	r.Delete("/api/v1/users/{userId}", UsersDelete(svc, nil))
	return r
}

func TestUsersApprove(t *testing.T) {
	svc := &stubUsersService{}
	router := usersRouter(svc)

	targetID := uuid.New()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/users/"+targetID.String()+"/approve", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.approved) != 1 || svc.approved[0] != targetID {
		t.Fatalf("approved = %v", svc.approved)
	}
	if svc.lastActor.Role != enums.UserRoleSuperadmin {
		t.Fatalf("actor role = %s", svc.lastActor.Role)
	}
}

func TestUsersApproveInvalidID(t *testing.T) {
	svc := &stubUsersService{}
	router := usersRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/users/not-a-uuid/approve", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if len(svc.approved) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestUsersRejectPassesReason(t *testing.T) {
	svc := &stubUsersService{}
	router := usersRouter(svc)

	targetID := uuid.New()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodPost, "/api/v1/users/"+targetID.String()+"/reject", `{"reason":"duplicate account"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastReason != "duplicate account" {
		t.Fatalf("reason = %q", svc.lastReason)
	}
}

func TestUsersDeleteSurfacesServiceError(t *testing.T) {
	svc := &stubUsersService{err: pkgerrors.New(pkgerrors.CodeForbidden, "cannot delete the superadmin account")}
	router := usersRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodDelete, "/api/v1/users/"+uuid.NewString(), ""))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}

func TestUsersListForwardsPagination(t *testing.T) {
	svc := &stubUsersService{all: []users.UserDTO{{ID: uuid.New()}}}
	router := usersRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/v1/users?limit=10&cursor=abc", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.listParams == nil {
		t.Fatalf("expected list params forwarded")
	}
	if svc.listParams.Limit != 10 || svc.listParams.Cursor != "abc" {
		t.Fatalf("unexpected params: %+v", svc.listParams)
	}
	var result struct {
		Count int `json:"count"`
	}
	decodeData(t, rec, &result)
	if result.Count != 1 {
		t.Fatalf("count = %d", result.Count)
	}
}

func TestUsersListRejectsBadLimit(t *testing.T) {
	svc := &stubUsersService{}
	router := usersRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/v1/users?limit=abc", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.listParams != nil {
		t.Fatalf("service should not be called on invalid limit")
	}
}

func TestUsersListPending(t *testing.T) {
	svc := &stubUsersService{pending: []users.UserDTO{{ID: uuid.New()}, {ID: uuid.New()}}}
	router := usersRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, adminRequest(http.MethodGet, "/api/v1/users/pending", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var result struct {
		Count int `json:"count"`
	}
	decodeData(t, rec, &result)
	if result.Count != 2 {
		t.Fatalf("count = %d", result.Count)
	}
}
