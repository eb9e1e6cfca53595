package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanosuguru/go-seat-booking-bot/internal/api/handler"
	"github.com/sanosuguru/go-seat-booking-bot/internal/api/middleware"
	"github.com/sanosuguru/go-seat-booking-bot/internal/config"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
)

// NewOpsServer はヘルスチェックとメトリクスを公開する運用サーバーを作成する
// ボット本体はロングポーリングで動作するため、HTTP で受け付けるのはこの2つのみ
func NewOpsServer(
	cfg config.ServerConfig,
	health *handler.HealthHandler,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	metricsAuth *middleware.MetricsConfig,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = CustomHTTPErrorHandler
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	middleware.SetupMiddleware(e, m)

	e.GET("/health", health.Check)

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metricsHandler := echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	e.GET("/metrics", metricsHandler, middleware.MetricsBasicAuth(metricsAuth))

	return e
}
