// Package authtest signs tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token returns an HS256 token for username carrying roles, expiring at
// exp. A zero exp yields a token without expiry.
func Token(t testing.TB, secret, username string, roles []string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"username": username,
		"name":     username,
	}
	if roles != nil {
		claims["roles"] = roles
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
