package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/config"
	"storefront/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey       = "user_id"       // int64
	CtxUserRoleKey     = "user_role"     // model.Role
	CtxTokenVersionKey = "token_version" // int
)

// 発行は認証サービス側。ここでは検証だけする。
type Claims struct {
	Role string `json:"role"`
	TV   int    `json:"tv"`
	jwt.RegisteredClaims
}

// bearerAuth用のJWT検証ミドルウェア（HS256のみ）。
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	secret := []byte(cfg.JWTSecret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			var claims Claims
			token, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
				return secret, nil
			})
			if err != nil || token == nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			userID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil || userID <= 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			role := model.Role(claims.Role)
			if role != model.RoleUser && role != model.RoleAdmin {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}
			if claims.TV < 0 {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			c.Set(CtxUserIDKey, userID)
			c.Set(CtxUserRoleKey, role)
			c.Set(CtxTokenVersionKey, claims.TV)

			return next(c)
		}
	}
}

// Authorization: Bearer <token>
func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
