package auth

import (
	"strings"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		AccountID:   "acc-1",
		AccountKind: "teacher",
		Role:        "teacher",
		TenantID:    "tenant-1",
		SchoolID:    "school-1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", "issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.AccountID != "acc-1" || claims.AccountKind != "teacher" || claims.TenantID != "tenant-1" || claims.SchoolID != "school-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestExpiredTokenFailsAsExpired(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", -time.Minute, Claims{
		AccountID:   "acc-1",
		AccountKind: "student",
		TenantID:    "tenant-1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "issuer", token); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTamperedTokenFailsAsInvalid(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		AccountID:   "acc-1",
		AccountKind: "student",
		TenantID:    "tenant-1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := ParseToken("secret", "issuer", tampered); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for tampered payload, got %v", err)
	}

	if _, err := ParseToken("other-secret", "issuer", token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for wrong secret, got %v", err)
	}
	if _, err := ParseToken("secret", "other-issuer", token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}
}
