package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssuer_IssueAndVerify(t *testing.T) {
	iss := NewIssuer([]byte("test-secret"), time.Hour)

	tok, err := iss.Issue(42, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" || claims.Subject != "42" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestIssuer_Verify_WrongSecret(t *testing.T) {
	tok, err := NewIssuer([]byte("one"), time.Hour).Issue(1, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := NewIssuer([]byte("two"), time.Hour).Verify(tok); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuer_Verify_Expired(t *testing.T) {
	iss := NewIssuer([]byte("s"), time.Minute)
	issued := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return issued }

	tok, err := iss.Issue(1, "alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	iss.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := iss.Verify(tok); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestIssuer_Verify_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		UserID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewIssuer([]byte("s"), time.Hour).Verify(tok); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for HS512 token, got %v", err)
	}
}

func TestIssuer_Verify_Garbage(t *testing.T) {
	if _, err := NewIssuer([]byte("s"), time.Hour).Verify("not-a-token"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
