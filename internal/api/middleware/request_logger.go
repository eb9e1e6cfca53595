package middleware

import (
	"slices"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
)

// RequestLogger はリクエストごとに構造化ログを1行出力する
// quiet に含まれるパスは成功時に Debug へ落とす
func RequestLogger(quiet ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// エラーハンドラーを先に通してステータスを確定させる
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}

			fields := []zap.Field{
				zap.String("request_id", id),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", res.Status),
				zap.Int64("size", res.Size),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			level, msg := zapcore.InfoLevel, "request completed"
			switch {
			case res.Status >= 500:
				level, msg = zapcore.ErrorLevel, "server error"
			case res.Status >= 400:
				level, msg = zapcore.WarnLevel, "client error"
			case slices.Contains(quiet, req.URL.Path):
				level = zapcore.DebugLevel
			}
			if ce := logger.Get().Check(level, msg); ce != nil {
				ce.Write(fields...)
			}

			return nil
		}
	}
}
