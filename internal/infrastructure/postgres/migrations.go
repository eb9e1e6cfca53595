package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
)

// ErrDirtySchema は前回のマイグレーションが途中で失敗したまま残っている
var ErrDirtySchema = errors.New("スキーマが dirty 状態です。手動で修復してください")

// RunMigrations は会場スキーマ（sections, rows, users, seats）を最新まで適用する
// 座席データの投入は行わない
func RunMigrations(db *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("マイグレーションドライバー作成エラー: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("マイグレーションインスタンス作成エラー: %w", err)
	}

	before, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		before = 0
	case err != nil:
		return fmt.Errorf("スキーマバージョン取得エラー: %w", err)
	case dirty:
		return fmt.Errorf("%w (version %d)", ErrDirtySchema, before)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("スキーマは最新です", zap.Uint("version", before))
			return nil
		}
		return fmt.Errorf("マイグレーション実行エラー: %w", err)
	}

	after, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("スキーマバージョン取得エラー: %w", err)
	}
	logger.Info("マイグレーションを適用しました", zap.Uint("from", before), zap.Uint("to", after))
	return nil
}
