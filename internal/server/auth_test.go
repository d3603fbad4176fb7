package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func runWithAuth(t *testing.T, secret []byte, header string) string {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got string
	handler := withOptionalUser(secret)(func(c echo.Context) error {
		got = userID(c)
		return nil
	})
	if err := handler(c); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	return got
}

func TestOptionalUserValidToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "reader-1"}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got := runWithAuth(t, secret, "Bearer "+token); got != "reader-1" {
		t.Fatalf("user id = %q, want reader-1", got)
	}
}

func TestOptionalUserNoToken(t *testing.T) {
	if got := runWithAuth(t, []byte("test-secret"), ""); got != "" {
		t.Fatalf("user id = %q, want anonymous", got)
	}
}

func TestOptionalUserBadTokenStaysAnonymous(t *testing.T) {
	if got := runWithAuth(t, []byte("test-secret"), "Bearer not.a.token"); got != "" {
		t.Fatalf("user id = %q, want anonymous on invalid token", got)
	}
}

func TestOptionalUserWrongSecretStaysAnonymous(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "reader-1"}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if got := runWithAuth(t, []byte("test-secret"), "Bearer "+token); got != "" {
		t.Fatalf("user id = %q, want anonymous on signature mismatch", got)
	}
}
