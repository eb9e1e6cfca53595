package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "seat-booking-bot"

var log = New("development", "")

// New は環境に応じたロガーを作成する
// production は JSON（service フィールド付き）、それ以外はカラー付きコンソール。
// level が空または不正なら環境の既定レベルのまま
func New(env, level string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.InitialFields = map[string]any{"service": serviceName}
	}

	if lvl, err := zapcore.ParseLevel(level); level != "" && err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Init はグローバルロガーを設定値から作り直す
func Init(env, level string) *zap.Logger {
	log = New(env, level)
	return log
}

func Get() *zap.Logger { return log }

func Set(l *zap.Logger) { log = l }

// ForConversation は会話（chat, user）を識別するフィールド付きのロガーを返す
func ForConversation(chatID, userID int64) *zap.Logger {
	return log.With(zap.Int64("chat_id", chatID), zap.Int64("user_id", userID))
}

func Debug(msg string, fields ...zap.Field) { log.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { log.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { log.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { log.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { log.Fatal(msg, fields...) }

func Sync() error { return log.Sync() }
