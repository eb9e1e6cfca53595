package middleware

import (
	"errors"
	"slices"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
)

// PrometheusMiddleware は運用サーバーへのリクエスト数と処理時間を記録する
// skip に含まれるルート（スクレイプ自体など）は記録しない
func PrometheusMiddleware(m *metrics.Metrics, skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if slices.Contains(skip, route) {
				return next(c)
			}
			if route == "" {
				route = "unmatched"
			}

			start := time.Now()
			err := next(c)

			code := c.Response().Status
			if he := (*echo.HTTPError)(nil); errors.As(err, &he) {
				code = he.Code
			}
			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(code)).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
