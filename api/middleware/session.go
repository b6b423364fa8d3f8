package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const userIDKey = "pictoria.user_id"

// Session authenticates requests by their bearer session token
// (HS256 JWT, subject = user id) and stores the resolved user id
// on the request context. Requests without a valid token are
// rejected with 401.
func Session(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, found := strings.CutPrefix(auth, "Bearer ")
			if !found || raw == "" {
				return echo.ErrUnauthorized
			}

			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				return echo.ErrUnauthorized
			}

			subject, err := token.Claims.GetSubject()
			if err != nil {
				return echo.ErrUnauthorized
			}

			id, err := uuid.Parse(subject)
			if err != nil {
				return echo.ErrUnauthorized
			}

			c.Set(userIDKey, id)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id set by Session.
func UserID(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(userIDKey).(uuid.UUID)
	return id, ok
}
