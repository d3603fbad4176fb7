package server

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// withOptionalUser extracts a user id from a bearer token when one is
// presented. Requests without a valid token proceed anonymously; the id only
// selects which profile personalizes the answer.
func withOptionalUser(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if len(secret) > 0 && strings.HasPrefix(auth, "Bearer ") {
				raw := strings.TrimPrefix(auth, "Bearer ")
				token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return secret, nil
				})
				if err == nil && token.Valid {
					if sub, err := token.Claims.GetSubject(); err == nil && sub != "" {
						c.Set("user_id", sub)
					}
				}
			}
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok {
		return v
	}
	return ""
}
