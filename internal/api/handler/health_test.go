package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func serveHealth(h *HealthHandler) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h.Check(c)
}

func TestHealthHandler_Check(t *testing.T) {
	t.Run("依存なし", func(t *testing.T) {
		rec, err := serveHealth(NewHealthHandler(nil))

		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
		assert.Contains(t, rec.Body.String(), `"timestamp"`)
		assert.NotContains(t, rec.Body.String(), `"components"`)
	})

	t.Run("全ての依存が正常", func(t *testing.T) {
		h := NewHealthHandler(map[string]Checker{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return nil },
		})
		rec, err := serveHealth(h)

		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"database":"ok"`)
		assert.Contains(t, rec.Body.String(), `"redis":"ok"`)
	})

	t.Run("依存の一部が停止していれば 503", func(t *testing.T) {
		h := NewHealthHandler(map[string]Checker{
			"database": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec, err := serveHealth(h)

		assert.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
		assert.Contains(t, rec.Body.String(), `"redis":"unavailable"`)
		assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	})

	t.Run("チェックにはタイムアウト付きのコンテキストが渡る", func(t *testing.T) {
		var hasDeadline bool
		h := NewHealthHandler(map[string]Checker{
			"database": func(ctx context.Context) error {
				_, hasDeadline = ctx.Deadline()
				return nil
			},
		})
		_, err := serveHealth(h)

		assert.NoError(t, err)
		assert.True(t, hasDeadline)
	})
}
