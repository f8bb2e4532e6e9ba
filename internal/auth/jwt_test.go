package auth

import (
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
}

func TestGenerateAndVerifyAccessToken(t *testing.T) {
	m := newTestManager()

	raw, err := m.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken error: %v", err)
	}

	claims, err := m.VerifyAccessToken(raw)
	if err != nil {
		t.Fatalf("VerifyAccessToken error: %v", err)
	}

	if claims.UserID != "user-1" {
		t.Fatalf("expected userID user-1, got %s", claims.UserID)
	}
	if claims.TokenType != "access" {
		t.Fatalf("expected typ access, got %s", claims.TokenType)
	}
	if claims.JTI == "" {
		t.Fatalf("expected a jti")
	}
}

func TestVerify_RejectsWrongTokenType(t *testing.T) {
	m := newTestManager()

	access, err := m.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken error: %v", err)
	}
	refresh, err := m.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken error: %v", err)
	}

	if _, err := m.VerifyRefreshToken(access); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for access token on refresh path, got %v", err)
	}
	if _, err := m.VerifyAccessToken(refresh); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for refresh token on access path, got %v", err)
	}
}

func TestVerify_FailuresAreIndistinguishable(t *testing.T) {
	m := newTestManager()
	other := NewManager("another-access", "another-refresh", time.Hour, 24*time.Hour)
	expiring := NewManager("access-secret", "refresh-secret", time.Hour, -time.Minute)

	foreign, err := other.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken error: %v", err)
	}
	expired, err := expiring.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken error: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong secret", token: foreign},
		{name: "expired", token: expired},
		{name: "malformed", token: "not-a-jwt"},
		{name: "empty", token: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.VerifyRefreshToken(tc.token)

			if err != ErrInvalidToken {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestManager_NoSecret(t *testing.T) {
	m := NewManager("", "", time.Hour, time.Hour)

	if _, err := m.GenerateAccessToken("user-1"); err != ErrNoSecret {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
	if _, err := m.GenerateRefreshToken("user-1"); err != ErrNoSecret {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
	if _, err := m.VerifyAccessToken("anything"); err != ErrNoSecret {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
