package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/posworks/posgrid-backend/pkg/config"
	"github.com/posworks/posgrid-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		AccessSecret:            "access-secret",
		RefreshSecret:           "refresh-secret",
		Issuer:                  "posgrid",
		Audience:                "posgrid-api",
		AccessExpirationMinutes: 30,
		RefreshExpirationDays:   7,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	payload := AccessTokenPayload{
		UserID:    userID,
		Username:  "cashier01",
		Role:      enums.UserRoleCashier,
		SessionID: "sess-1",
	}

	token, err := MintAccessToken(cfg, now, payload)
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Username != "cashier01" {
		t.Fatalf("unexpected username %s", claims.Username)
	}
	if claims.Role != enums.UserRoleCashier {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.SessionID != "sess-1" {
		t.Fatalf("unexpected session id %s", claims.SessionID)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("unexpected token type %s", claims.TokenType)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}

	exp := now.Add(time.Duration(cfg.AccessExpirationMinutes) * time.Minute)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v (diff %v)", exp.UTC(), claims.ExpiresAt.UTC(), diff)
	}
}

func TestMintAndParseRefreshToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintRefreshToken(cfg, now, userID, "sess-2")
	if err != nil {
		t.Fatalf("mint refresh token: %v", err)
	}

	claims, err := ParseRefreshToken(cfg, token)
	if err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.SessionID != "sess-2" {
		t.Fatalf("unexpected session id %s", claims.SessionID)
	}
	if claims.TokenType != TokenTypeRefresh {
		t.Fatalf("unexpected token type %s", claims.TokenType)
	}
}

func TestParseAccessTokenRejectsRefreshToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	refresh, err := MintRefreshToken(cfg, now, uuid.New(), "sess-3")
	if err != nil {
		t.Fatalf("mint refresh token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, refresh); err == nil {
		t.Fatal("expected refresh token to fail access parsing")
	}
}

func TestParseRefreshTokenRejectsAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	access, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:    uuid.New(),
		Username:  "manager01",
		Role:      enums.UserRoleManager,
		SessionID: "sess-4",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}
	if _, err := ParseRefreshToken(cfg, access); err == nil {
		t.Fatal("expected access token to fail refresh parsing")
	}
}

func TestParseTokenTypeRejectsCrossSignedType(t *testing.T) {
	// Same secret for both parsers would make token_type the only guard.
	cfg := testJWTConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	now := time.Now().UTC()

	refresh, err := MintRefreshToken(cfg, now, uuid.New(), "sess-5")
	if err != nil {
		t.Fatalf("mint refresh token: %v", err)
	}
	if _, err := ParseAccessToken(cfg, refresh); err == nil {
		t.Fatal("expected token type mismatch error")
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:    uuid.New(),
		Username:  "manager01",
		Role:      enums.UserRoleManager,
		SessionID: "sess-6",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, token+"x"); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().Add(-time.Hour)

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:    uuid.New(),
		Username:  "cashier02",
		Role:      enums.UserRoleCashier,
		SessionID: "sess-7",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	_, err = ParseAccessToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMintAccessTokenRejectsInvalidRole(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID:    uuid.New(),
		Username:  "ghost",
		Role:      enums.UserRole("intruder"),
		SessionID: "sess-8",
	})
	if err == nil {
		t.Fatal("expected invalid role error")
	}
}
