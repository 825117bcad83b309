package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/internal/auth"
	"github.com/posworks/posgrid-backend/internal/passwordreset"
	"github.com/posworks/posgrid-backend/internal/users"
	pkgAuth "github.com/posworks/posgrid-backend/pkg/auth"
	"github.com/posworks/posgrid-backend/pkg/auth/session"
	"github.com/posworks/posgrid-backend/pkg/authz"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/enums"
	"github.com/posworks/posgrid-backend/pkg/logger"
	"github.com/posworks/posgrid-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubIdentities struct {
	users map[uuid.UUID]*users.UserDTO
}

func (s stubIdentities) Lookup(_ context.Context, id uuid.UUID) (*users.UserDTO, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

type stubToucher struct{}

func (stubToucher) Touch(context.Context, string) (bool, error) { return true, nil }

type stubSessionReader struct{}

func (stubSessionReader) UserSessions(context.Context, uuid.UUID) ([]*session.Session, error) {
	return nil, nil
}

func (stubSessionReader) Stats(context.Context) (session.Stats, error) {
	return session.Stats{}, nil
}

type stubAuthService struct{}

func (stubAuthService) Login(context.Context, auth.LoginRequest, session.DeviceInfo) (*auth.LoginResponse, error) {
	return &auth.LoginResponse{}, nil
}

func (stubAuthService) Refresh(context.Context, auth.RefreshRequest) (*auth.RefreshResponse, error) {
	return &auth.RefreshResponse{AccessToken: "rotated"}, nil
}

func (stubAuthService) Logout(context.Context, string) error { return nil }

func (stubAuthService) LogoutAll(context.Context, uuid.UUID) (int, error) { return 0, nil }

type stubRegisterService struct{}

func (stubRegisterService) Register(context.Context, auth.RegisterRequest) (*auth.RegisterResponse, error) {
	return &auth.RegisterResponse{RequiresApproval: true}, nil
}

func (stubRegisterService) AdminCreate(context.Context, auth.CreatorContext, auth.AdminCreateRequest) (*auth.RegisterResponse, error) {
	return &auth.RegisterResponse{}, nil
}

type stubUsersService struct{}

func (stubUsersService) Approve(context.Context, users.Actor, uuid.UUID) (*users.UserDTO, error) {
	return &users.UserDTO{}, nil
}

func (stubUsersService) Reject(context.Context, users.Actor, uuid.UUID, string) error { return nil }

func (stubUsersService) Delete(context.Context, users.Actor, uuid.UUID) error { return nil }

func (stubUsersService) ListPending(context.Context) ([]users.UserDTO, error) { return nil, nil }

func (stubUsersService) List(context.Context, users.ListParams) (*users.ListResult, error) {
	return &users.ListResult{}, nil
}

func (stubUsersService) GetByID(context.Context, uuid.UUID) (*users.UserDTO, error) {
	return &users.UserDTO{}, nil
}

type stubResetService struct{}

func (stubResetService) Request(context.Context, string, string, string) error { return nil }

func (stubResetService) Verify(context.Context, string) error { return nil }

func (stubResetService) Reset(context.Context, string, string) error { return nil }

func (stubResetService) HasRecentAttempts(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}

func (stubResetService) Purge(context.Context) (int64, error) { return 0, nil }

var _ passwordreset.Service = stubResetService{}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			AccessSecret:            "access-secret",
			RefreshSecret:           "refresh-secret",
			Issuer:                  "posgrid-test",
			Audience:                "posgrid-api",
			AccessExpirationMinutes: 60,
			RefreshExpirationDays:   7,
		},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:     time.Minute,
			LoginEmailLimit: 5,
			LoginIPLimit:    20,
			ResetWindow:     5 * time.Minute,
			ResetEmailLimit: 3,
			ResetIPLimit:    20,
		},
	}
}

func newTestRouter(t *testing.T, directory map[uuid.UUID]*users.UserDTO) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "router-test", Level: zerolog.ErrorLevel, Output: io.Discard})
	return NewRouter(Deps{
		Config:          testConfig(),
		Logger:          logg,
		DB:              stubPinger{},
		Redis:           (*redis.Client)(nil),
		Identity:        stubIdentities{users: directory},
		Sessions:        stubToucher{},
		SessionReader:   stubSessionReader{},
		Engine:          authz.NewEngine(authz.DefaultMatrix()),
		AuthService:     stubAuthService{},
		RegisterService: stubRegisterService{},
		UsersService:    stubUsersService{},
		ResetService:    stubResetService{},
	})
}

func mintFor(t *testing.T, user *users.UserDTO, sessionID string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sessionID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func userWithRole(role enums.UserRole) *users.UserDTO {
	return &users.UserDTO{
		ID:         uuid.New(),
		Username:   "router-" + string(role),
		Role:       role,
		Status:     enums.UserStatusActive,
		IsApproved: true,
	}
}

func TestRouterHealthLive(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestRouterRefreshIsPublic(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", strings.NewReader(`{"refresh_token":"tok"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterProtectedRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/api/v1/sessions/me", "/api/v1/users", "/api/ping"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 got %d", path, rec.Code)
		}
	}
}

func TestRouterCashierBlockedFromUserManagement(t *testing.T) {
	cashier := userWithRole(enums.UserRoleCashier)
	router := newTestRouter(t, map[uuid.UUID]*users.UserDTO{cashier.ID: cashier})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+mintFor(t, cashier, "sess-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterCashierCanListOwnSessions(t *testing.T) {
	cashier := userWithRole(enums.UserRoleCashier)
	router := newTestRouter(t, map[uuid.UUID]*users.UserDTO{cashier.ID: cashier})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/me", nil)
	req.Header.Set("Authorization", "Bearer "+mintFor(t, cashier, "sess-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterCashierBlockedFromSessionStats(t *testing.T) {
	cashier := userWithRole(enums.UserRoleCashier)
	router := newTestRouter(t, map[uuid.UUID]*users.UserDTO{cashier.ID: cashier})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/stats", nil)
	req.Header.Set("Authorization", "Bearer "+mintFor(t, cashier, "sess-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterManagerListsUsers(t *testing.T) {
	manager := userWithRole(enums.UserRoleManager)
	router := newTestRouter(t, map[uuid.UUID]*users.UserDTO{manager.ID: manager})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+mintFor(t, manager, "sess-1"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouterSuperadminReachesEverything(t *testing.T) {
	admin := userWithRole(enums.UserRoleSuperadmin)
	router := newTestRouter(t, map[uuid.UUID]*users.UserDTO{admin.ID: admin})
	token := mintFor(t, admin, "sess-1")

	for _, path := range []string{"/api/v1/users", "/api/v1/users/pending", "/api/v1/sessions/stats", "/api/ping"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d: %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRouterVerifyResetTokenIsPublic(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/reset-password/tok-123", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}
