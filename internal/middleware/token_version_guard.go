package middleware

import (
	"net/http"

	"storefront/internal/repository"

	"github.com/labstack/echo/v4"
)

// JWTのtvとusers.token_versionが違えば失効済みとして401。
// 無効化されたユーザーも通さない。
func TokenVersionGuard(users repository.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := c.Get(CtxUserIDKey).(int64)
			if !ok || userID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			tv, ok := c.Get(CtxTokenVersionKey).(int)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			user, err := users.FindByID(c.Request().Context(), userID)
			if err != nil || user == nil || !user.IsActive {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if user.TokenVersion != tv {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			return next(c)
		}
	}
}
