package middleware

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sanosuguru/go-seat-booking-bot/internal/config"
)

const metricsRealm = "seat-booking-bot metrics"

// MetricsConfig は /metrics の認証情報
type MetricsConfig struct {
	User     string
	Password string
}

// NewMetricsConfig はサーバー設定から認証情報を取り出す
func NewMetricsConfig(cfg config.ServerConfig) *MetricsConfig {
	return &MetricsConfig{User: cfg.MetricsUser, Password: cfg.MetricsPassword}
}

// IsEnabled はユーザーとパスワードの両方が設定されているかを返す
func (c *MetricsConfig) IsEnabled() bool {
	return c != nil && c.User != "" && c.Password != ""
}

// MetricsBasicAuth は /metrics を Basic 認証で保護する
// 認証情報がなければ素通しする（ローカル開発用）
func MetricsBasicAuth(cfg *MetricsConfig) echo.MiddlewareFunc {
	if !cfg.IsEnabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	wantUser, wantPass := []byte(cfg.User), []byte(cfg.Password)
	return middleware.BasicAuthWithConfig(middleware.BasicAuthConfig{
		Realm: metricsRealm,
		Validator: func(user, pass string, _ echo.Context) (bool, error) {
			// 長さの違いで早期に抜けないよう両方とも比較する
			okUser := subtle.ConstantTimeCompare([]byte(user), wantUser)
			okPass := subtle.ConstantTimeCompare([]byte(pass), wantPass)
			return okUser&okPass == 1, nil
		},
	})
}
