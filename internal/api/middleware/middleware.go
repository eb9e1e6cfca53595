package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
)

// プローブとスクレイプは数秒おきに届く
var probePaths = []string{"/health", "/metrics"}

// SetupMiddleware は運用サーバーの共通ミドルウェアを設定する
// m が nil なら HTTP メトリクスは記録しない
func SetupMiddleware(e *echo.Echo, m *metrics.Metrics) {
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(RequestLogger(probePaths...))
	e.Use(middleware.Recover())

	if m != nil {
		e.Use(PrometheusMiddleware(m, "/metrics"))
	}
}
