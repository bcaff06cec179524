package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const HeaderRequestID = "X-Request-ID"

// リクエストごとに1行ログを出す。X-Request-IDが無ければ振る。
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			reqID := c.Request().Header.Get(HeaderRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			c.Response().Header().Set(HeaderRequestID, reqID)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			fields := []zap.Field{
				zap.String("request_id", reqID),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
			}
			if uid, ok := c.Get(CtxUserIDKey).(int64); ok {
				fields = append(fields, zap.Int64("user_id", uid))
			}

			if c.Response().Status >= 500 {
				logger.Error("request", append(fields, zap.Error(err))...)
			} else {
				logger.Info("request", fields...)
			}
			return nil
		}
	}
}
