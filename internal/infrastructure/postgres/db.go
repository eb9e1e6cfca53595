package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/config"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
)

const connectRetryDelay = 2 * time.Second

// NewConnection はPostgreSQLへの接続を作成する
// 接続プールは設定値に従う（未設定なら 10 / 5）
func NewConnection(cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}
	configurePool(db, cfg)
	return db, nil
}

// ConnectWithRetry は接続できるまで cfg.ConnectAttempts 回まで試行する
func ConnectWithRetry(ctx context.Context, cfg *config.DatabaseConfig) (*sqlx.DB, error) {
	attempts := max(cfg.ConnectAttempts, 1)

	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := NewConnection(cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		logger.Warn("データベース接続を再試行します",
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectRetryDelay):
		}
	}
	return nil, lastErr
}

func configurePool(db *sqlx.DB, cfg *config.DatabaseConfig) {
	maxOpen, maxIdle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = min(5, maxOpen)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxIdleTime(5 * time.Minute)
}

// Ping はデータベース接続を確認する（ヘルスチェック用）
func Ping(ctx context.Context, db *sqlx.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("データベースに到達できません: %w", err)
	}
	return nil
}
