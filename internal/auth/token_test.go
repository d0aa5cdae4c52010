package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func validClaims(exp time.Time) Claims {
	return Claims{
		Sub:   "8a9d6c1e-0f57-4a57-9d0b-6fd1a1d2b001",
		Name:  "student",
		Email: "student@school.edu",
		Role:  "user",
		JTI:   "jti-1",
		Exp:   exp.Unix(),
	}
}

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, validClaims(time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Name != "student" || claims.Role != "user" || claims.Email != "student@school.edu" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejects(t *testing.T) {
	secret := []byte("secret")
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	good, _ := IssueToken(secret, validClaims(now.Add(time.Minute)))
	expired, _ := IssueToken(secret, validClaims(now.Add(-time.Minute)))
	noRole := validClaims(now.Add(time.Minute))
	noRole.Role = ""
	roleless, _ := IssueToken(secret, noRole)

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "expired", token: expired, want: ErrExpiredToken},
		{name: "wrong secret", token: func() string { tok, _ := IssueToken([]byte("other"), validClaims(now.Add(time.Minute))); return tok }(), want: ErrInvalidToken},
		{name: "tampered payload", token: "x" + good, want: ErrInvalidToken},
		{name: "extra segment", token: good + ".more", want: ErrInvalidToken},
		{name: "missing role", token: roleless, want: ErrInvalidToken},
		{name: "garbage", token: strings.Repeat("a", 10), want: ErrInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseAt(secret, tc.token, now); !errors.Is(err, tc.want) {
				t.Fatalf("parseAt() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") || HashToken("abc") == HashToken("abd") {
		t.Fatal("HashToken must be deterministic and distinguish inputs")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatal("expected hex sha256")
	}
}
