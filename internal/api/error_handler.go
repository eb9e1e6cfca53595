package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
)

// ErrorResponse は運用サーバーのエラー応答
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// CustomHTTPErrorHandler は echo のエラーを JSON で返す
// 内部エラーの詳細はログにのみ残し、応答には含めない
func CustomHTTPErrorHandler(err error, c echo.Context) {
	res := c.Response()
	if res.Committed {
		return
	}

	resp := ErrorResponse{
		Error:     "内部サーバーエラー",
		Code:      http.StatusInternalServerError,
		RequestID: res.Header().Get(echo.HeaderXRequestID),
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		resp.Code = he.Code
		resp.Error = http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			resp.Error = msg
		}
	}

	if resp.Code >= http.StatusInternalServerError {
		logger.Error("運用サーバーでエラーが発生しました",
			zap.String("request_id", resp.RequestID),
			zap.String("path", c.Request().URL.Path),
			zap.Int("status", resp.Code),
			zap.Error(err),
		)
	}

	var sendErr error
	if c.Request().Method == http.MethodHead {
		sendErr = c.NoContent(resp.Code)
	} else {
		sendErr = c.JSON(resp.Code, resp)
	}
	if sendErr != nil {
		logger.Warn("エラー応答を送信できませんでした", zap.Error(sendErr))
	}
}
