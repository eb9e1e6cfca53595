package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
)

// Checker は依存サービスの疎通を確認する
type Checker func(ctx context.Context) error

// HealthHandler はヘルスチェックハンドラー
type HealthHandler struct {
	checkers map[string]Checker
	timeout  time.Duration
}

// NewHealthHandler はHealthHandlerを作成する
// checkers のキーはレスポンスの components に使われる（"database", "redis" など）
func NewHealthHandler(checkers map[string]Checker) *HealthHandler {
	if checkers == nil {
		checkers = map[string]Checker{}
	}
	return &HealthHandler{checkers: checkers, timeout: 2 * time.Second}
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// Check はヘルスチェックを行う
// いずれかの依存サービスに到達できない場合は 503 を返す
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	resp := HealthResponse{Status: "ok", Timestamp: time.Now().Format(time.RFC3339)}
	if len(names) > 0 {
		resp.Components = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checkers[name](ctx); err != nil {
			logger.Warn("ヘルスチェック失敗", zap.String("component", name), zap.Error(err))
			resp.Components[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}
	return c.JSON(status, resp)
}
