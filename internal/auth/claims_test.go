package auth

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "test-secret-0123456789abcdef"

func testUser() *User {
	return &User{
		ID:       "user-1",
		Username: "jdoe",
		Role:     RoleAdmin,
		IsActive: true,
	}
}

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken(testUser(), testSecret, "runtrack", 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}

	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("role = %q, want admin", claims.Role)
	}
	if claims.Issuer != "runtrack" {
		t.Errorf("issuer = %q, want runtrack", claims.Issuer)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		t.Fatal("missing expiry or issued-at")
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl.Minutes() != 60 {
		t.Errorf("ttl = %v, want 60m", ttl)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(testUser(), testSecret, "runtrack", 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseToken(token, "different-secret"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken with wrong secret = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Tampered(t *testing.T) {
	token, err := GenerateToken(testUser(), testSecret, "runtrack", 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseToken(token+"tampered", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("tampered token = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_UnknownRole(t *testing.T) {
	u := testUser()
	u.Role = "superuser"
	token, err := GenerateToken(u, testSecret, "runtrack", 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("unknown role = %v, want ErrTokenInvalid", err)
	}
}

func TestIsValidUsername(t *testing.T) {
	valid := []string{"jdoe", "user-1", "abc", "a_b_c_9"}
	invalid := []string{"", "ab", "Uppercase", "-leading", "spaces here", strings.Repeat("a", 40)}

	for _, u := range valid {
		if !IsValidUsername(u) {
			t.Errorf("IsValidUsername(%q) = false, want true", u)
		}
	}
	for _, u := range invalid {
		if IsValidUsername(u) {
			t.Errorf("IsValidUsername(%q) = true, want false", u)
		}
	}
}
