package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/internal/users"
	pkgauth "github.com/posworks/posgrid-backend/pkg/auth"
	"github.com/posworks/posgrid-backend/pkg/auth/session"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/db/models"
	"github.com/posworks/posgrid-backend/pkg/enums"
	pkgerrors "github.com/posworks/posgrid-backend/pkg/errors"
	"github.com/posworks/posgrid-backend/pkg/outbox"
	"github.com/posworks/posgrid-backend/pkg/outbox/payloads"
	"github.com/posworks/posgrid-backend/pkg/security"
)

type stubRepo struct {
	users.Repository
	byID       map[uuid.UUID]*models.User
	lastLogins map[uuid.UUID]time.Time
}

func newStubRepo(list ...*models.User) *stubRepo {
	r := &stubRepo{
		byID:       make(map[uuid.UUID]*models.User),
		lastLogins: make(map[uuid.UUID]time.Time),
	}
	for _, u := range list {
		r.byID[u.ID] = u
	}
	return r
}

func (r *stubRepo) WithTx(tx *gorm.DB) users.Repository { return r }

func (r *stubRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *stubRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	needle := strings.ToLower(identifier)
	for _, u := range r.byID {
		if u.Status == enums.UserStatusDeleted {
			continue
		}
		if strings.ToLower(u.Username) == needle || strings.ToLower(u.Email) == needle {
			copied := *u
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.lastLogins[id] = at
	return nil
}

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		AccessSecret:            "access-secret",
		RefreshSecret:           "refresh-secret",
		Issuer:                  "posgrid-test",
		Audience:                "posgrid-api",
		AccessExpirationMinutes: 60,
		RefreshExpirationDays:   7,
	}
}

type fixture struct {
	svc      Service
	repo     *stubRepo
	outbox   *stubOutbox
	registry *session.Registry
}

func newFixture(t *testing.T, list ...*models.User) *fixture {
	t.Helper()
	registry, err := session.NewRegistry(session.NewMemoryStore(), time.Hour)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	repo := newStubRepo(list...)
	emitter := &stubOutbox{}
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Tx:       stubTx{},
		Outbox:   emitter,
		Registry: registry,
		JWT:      testJWTConfig(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{svc: svc, repo: repo, outbox: emitter, registry: registry}
}

func activeUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, testPasswordConfig())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &models.User{
		ID:           uuid.New(),
		Username:     "casey",
		Email:        "casey@example.com",
		PasswordHash: hash,
		FirstName:    "Casey",
		LastName:     "Nguyen",
		Role:         enums.UserRoleCashier,
		Status:       enums.UserStatusActive,
	}
}

func TestLoginIssuesTokensAndSession(t *testing.T) {
	user := activeUser(t, "hunter2secret")
	fx := newFixture(t, user)
	device := session.DeviceInfo{IPAddress: "10.0.0.9", UserAgent: "pos-terminal/1.4"}

	resp, err := fx.svc.Login(context.Background(), LoginRequest{Identifier: "casey@example.com", Password: "hunter2secret"}, device)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.SessionID != resp.SessionID {
		t.Fatalf("access token session = %q, want %q", claims.SessionID, resp.SessionID)
	}
	if claims.UserID != user.ID {
		t.Fatalf("access token user = %s, want %s", claims.UserID, user.ID)
	}

	if _, err := fx.registry.Get(context.Background(), resp.SessionID); err != nil {
		t.Fatalf("session not live after login: %v", err)
	}
	if _, ok := fx.repo.lastLogins[user.ID]; !ok {
		t.Fatal("last login was not recorded")
	}
	if len(fx.outbox.events) != 0 {
		t.Fatalf("first login emitted %d events, want 0", len(fx.outbox.events))
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	user := activeUser(t, "hunter2secret")
	fx := newFixture(t, user)

	cases := []LoginRequest{
		{Identifier: "casey", Password: "wrong-password"},
		{Identifier: "nobody@example.com", Password: "hunter2secret"},
	}
	for _, req := range cases {
		_, err := fx.svc.Login(context.Background(), req, session.DeviceInfo{})
		appErr := pkgerrors.As(err)
		if appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
			t.Fatalf("Login(%q) error = %v, want unauthorized", req.Identifier, err)
		}
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	user := activeUser(t, "hunter2secret")
	user.Status = enums.UserStatusInactive
	fx := newFixture(t, user)

	_, err := fx.svc.Login(context.Background(), LoginRequest{Identifier: "casey", Password: "hunter2secret"}, session.DeviceInfo{})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeAccountDeactivated {
		t.Fatalf("error = %v, want account deactivated", err)
	}
}

func TestLoginPendingApproval(t *testing.T) {
	user := activeUser(t, "hunter2secret")
	pending := false
	user.IsApproved = &pending
	fx := newFixture(t, user)

	_, err := fx.svc.Login(context.Background(), LoginRequest{Identifier: "casey", Password: "hunter2secret"}, session.DeviceInfo{})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodePendingApproval {
		t.Fatalf("error = %v, want pending approval", err)
	}
}

func TestLoginDisplacesExistingSession(t *testing.T) {
	user := activeUser(t, "hunter2secret")
	fx := newFixture(t, user)
	ctx := context.Background()

	first, err := fx.svc.Login(ctx, LoginRequest{Identifier: "casey", Password: "hunter2secret"}, session.DeviceInfo{IPAddress: "10.0.0.9"})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	second, err := fx.svc.Login(ctx, LoginRequest{Identifier: "casey", Password: "hunter2secret"}, session.DeviceInfo{IPAddress: "10.0.0.44", UserAgent: "pos-terminal/2.0"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if _, err := fx.registry.Get(ctx, first.SessionID); err == nil {
		t.Fatal("displaced session is still live")
	}
	if _, err := fx.registry.Get(ctx, second.SessionID); err != nil {
		t.Fatalf("new session not live: %v", err)
	}

	if len(fx.outbox.events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(fx.outbox.events))
	}
	event := fx.outbox.events[0]
	if event.EventType != enums.EventSessionTerminated {
		t.Fatalf("event type = %s, want session_terminated", event.EventType)
	}
	data, ok := event.Data.(payloads.SessionTerminatedEvent)
	if !ok {
		t.Fatalf("event data has type %T", event.Data)
	}
	if data.SessionID != first.SessionID {
		t.Fatalf("terminated session = %q, want %q", data.SessionID, first.SessionID)
	}
	if data.Reason != enums.TerminationConcurrentLogin {
		t.Fatalf("reason = %s, want concurrent_login", data.Reason)
	}
	if data.NewDevice == nil || data.NewDevice.IPAddress != "10.0.0.44" {
		t.Fatalf("new device = %+v, want the displacing login's device", data.NewDevice)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	user := activeUser(t, "hunter2secret")
	fx := newFixture(t, user)
	ctx := context.Background()

	login, err := fx.svc.Login(ctx, LoginRequest{Identifier: "casey", Password: "hunter2secret"}, session.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	resp, err := fx.svc.Refresh(ctx, RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	claims, err := pkgauth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.SessionID != login.SessionID {
		t.Fatalf("refreshed token session = %q, want %q", claims.SessionID, login.SessionID)
	}
}

func TestRefreshRejectsRevokedSession(t *testing.T) {
	user := activeUser(t, "hunter2secret")
	fx := newFixture(t, user)
	ctx := context.Background()

	login, err := fx.svc.Login(ctx, LoginRequest{Identifier: "casey", Password: "hunter2secret"}, session.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := fx.svc.Logout(ctx, login.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	_, err = fx.svc.Refresh(ctx, RefreshRequest{RefreshToken: login.RefreshToken})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Refresh(context.Background(), RefreshRequest{RefreshToken: "not-a-token"})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	user := activeUser(t, "hunter2secret")
	fx := newFixture(t, user)
	ctx := context.Background()

	login, err := fx.svc.Login(ctx, LoginRequest{Identifier: "casey", Password: "hunter2secret"}, session.DeviceInfo{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	count, err := fx.svc.LogoutAll(ctx, user.ID)
	if err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if count != 1 {
		t.Fatalf("revoked %d sessions, want 1", count)
	}
	if _, err := fx.registry.Get(ctx, login.SessionID); err == nil {
		t.Fatal("session still live after logout-all")
	}
}
