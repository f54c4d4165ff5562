package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func sign(t *testing.T, secret []byte, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func validClaims(exp time.Time) Claims {
	return Claims{
		Role:     "moderator",
		Username: "avery",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr_1",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func TestParseValidToken(t *testing.T) {
	secret := []byte("secret")
	v := NewVerifier(secret)
	identity, err := v.Parse(sign(t, secret, jwt.SigningMethodHS256, validClaims(time.Now().Add(time.Hour))))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if identity.UserID != "usr_1" || identity.Role != "moderator" || identity.Username != "avery" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	_, err := NewVerifier(secret).Parse(sign(t, secret, jwt.SigningMethodHS256, validClaims(time.Now().Add(-time.Minute))))
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("Parse() error = %v, want ErrExpiredToken", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token := sign(t, []byte("other"), jwt.SigningMethodHS256, validClaims(time.Now().Add(time.Hour)))
	_, err := NewVerifier([]byte("secret")).Parse(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsMissingSubject(t *testing.T) {
	secret := []byte("secret")
	claims := validClaims(time.Now().Add(time.Hour))
	claims.Subject = ""
	_, err := NewVerifier(secret).Parse(sign(t, secret, jwt.SigningMethodHS256, claims))
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	secret := []byte("secret")
	token := sign(t, secret, jwt.SigningMethodHS512, validClaims(time.Now().Add(time.Hour)))
	if _, err := NewVerifier(secret).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Parse() error = %v, want ErrInvalidToken", err)
	}
	if _, err := NewVerifier(secret).Parse("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Parse(garbage) error = %v, want ErrInvalidToken", err)
	}
}
