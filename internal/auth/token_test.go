package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("test-secret", "nudge")
	tok, err := v.Issue(42, "Grace", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ac, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ac.UserID != 42 || ac.DisplayName != "Grace" {
		t.Errorf("auth = %+v", ac)
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("test-secret", "nudge")

	expired, _ := v.Issue(1, "", -time.Hour)
	otherKey, _ := NewVerifier("other-secret", "nudge").Issue(1, "", time.Hour)
	otherIssuer, _ := NewVerifier("test-secret", "someone-else").Issue(1, "", time.Hour)
	badSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice", Issuer: "nudge"},
	}).SignedString([]byte("test-secret"))
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", Issuer: "nudge"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"garbage":      "not-a-token",
		"expired":      expired,
		"wrong key":    otherKey,
		"wrong issuer": otherIssuer,
		"bad subject":  badSubject,
		"alg none":     noneAlg,
	}
	for name, tok := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(tok)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestAdminsIgnoreRequester(t *testing.T) {
	admins := NewAdmins([]int64{1, 5})
	if !admins.Contains(5) {
		t.Error("5 should be an admin")
	}
	if admins.Contains(2) {
		t.Error("2 should not be an admin")
	}
	if NewAdmins(nil).Contains(1) {
		t.Error("empty allow-list should admit nobody")
	}
}
