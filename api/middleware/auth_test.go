package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/posworks/posgrid-backend/internal/users"
	pkgAuth "github.com/posworks/posgrid-backend/pkg/auth"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/enums"
)

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

type stubIdentities struct {
	identities map[uuid.UUID]*users.UserDTO
}

func (s stubIdentities) Lookup(ctx context.Context, id uuid.UUID) (*users.UserDTO, error) {
	user, ok := s.identities[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

type stubToucher struct {
	live    bool
	touched []string
}

func (s *stubToucher) Touch(ctx context.Context, id string) (bool, error) {
	s.touched = append(s.touched, id)
	return s.live, nil
}

func activeUser() *users.UserDTO {
	return &users.UserDTO{
		ID:         uuid.New(),
		Username:   "casey",
		Email:      "casey@example.com",
		Role:       enums.UserRoleCashier,
		Status:     enums.UserStatusActive,
		IsApproved: true,
	}
}

func mintToken(t *testing.T, user *users.UserDTO, sessionID string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testJWTConfig(), time.Now(), pkgAuth.AccessTokenPayload{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sessionID,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}
	return token
}

func runAuth(t *testing.T, user *users.UserDTO, toucher *stubToucher, token string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	identities := stubIdentities{identities: map[uuid.UUID]*users.UserDTO{}}
	if user != nil {
		identities.identities[user.ID] = user
	}
	captured := map[string]string{}
	handler := Auth(testJWTConfig(), identities, toucher, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured["user"] = UserIDFromContext(r.Context())
		captured["role"] = RoleFromContext(r.Context())
		captured["session"] = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp, captured
}

func TestAuthRejectsMissingToken(t *testing.T) {
	resp, _ := runAuth(t, activeUser(), &stubToucher{live: true}, "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	resp, _ := runAuth(t, activeUser(), &stubToucher{live: true}, "invalid")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsContextAndTouchesSession(t *testing.T) {
	user := activeUser()
	toucher := &stubToucher{live: true}
	resp, captured := runAuth(t, user, toucher, mintToken(t, user, "sess-1"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured["user"] != user.ID.String() {
		t.Fatalf("user in context = %q, want %s", captured["user"], user.ID)
	}
	if captured["role"] != string(enums.UserRoleCashier) {
		t.Fatalf("role in context = %q, want cashier", captured["role"])
	}
	if captured["session"] != "sess-1" {
		t.Fatalf("session in context = %q, want sess-1", captured["session"])
	}
	if len(toucher.touched) != 1 || toucher.touched[0] != "sess-1" {
		t.Fatalf("touched = %v, want [sess-1]", toucher.touched)
	}
}

func TestAuthRejectsDeadSession(t *testing.T) {
	user := activeUser()
	resp, _ := runAuth(t, user, &stubToucher{live: false}, mintToken(t, user, "sess-1"))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsDeactivatedAccount(t *testing.T) {
	user := activeUser()
	user.Status = enums.UserStatusInactive
	resp, _ := runAuth(t, user, &stubToucher{live: true}, mintToken(t, user, "sess-1"))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "ACCOUNT_DEACTIVATED" {
		t.Fatalf("error code = %q, want ACCOUNT_DEACTIVATED", code)
	}
}

func TestAuthRejectsPendingAccountThenAllowsApproved(t *testing.T) {
	user := activeUser()
	user.IsApproved = false
	token := mintToken(t, user, "sess-1")

	resp, _ := runAuth(t, user, &stubToucher{live: true}, token)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "PENDING_APPROVAL" {
		t.Fatalf("error code = %q, want PENDING_APPROVAL", code)
	}

	user.IsApproved = true
	resp, _ = runAuth(t, user, &stubToucher{live: true}, token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 after approval, got %d", resp.Code)
	}
}

func TestAuthRejectsUnknownUser(t *testing.T) {
	user := activeUser()
	token := mintToken(t, user, "sess-1")
	resp, _ := runAuth(t, nil, &stubToucher{live: true}, token)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}
