package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestVerifyToken(t *testing.T) {
	secret := "test-secret"
	valid := signToken(t, secret, Claims{
		UserID: "owner-1",
		Email:  "owner@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	claims, err := VerifyToken(valid, secret)
	if err != nil {
		t.Fatal(err)
	}
	if claims.OwnerID() != "owner-1" || claims.Email != "owner@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	subjectOnly := signToken(t, secret, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "owner-2"}})
	claims, err = VerifyToken(subjectOnly, secret)
	if err != nil || claims.OwnerID() != "owner-2" {
		t.Fatalf("subject fallback failed: %v %+v", err, claims)
	}
}

func TestVerifyTokenRejects(t *testing.T) {
	secret := "test-secret"
	testCases := map[string]string{
		"wrong secret": signToken(t, "other", Claims{UserID: "x"}),
		"expired": signToken(t, secret, Claims{
			UserID: "x",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}),
		"no owner": signToken(t, secret, Claims{}),
		"garbage":  "not-a-token",
	}
	for name, token := range testCases {
		if _, err := VerifyToken(token, secret); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
