package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-seat-booking-bot/internal/config"
)

const dialTimeout = 3 * time.Second

// NewClient はセッション保存とターンロック用のクライアントを作成する
// 接続は最初のコマンドまで遅延される
func NewClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(options(cfg))
}

func options(cfg *config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	// 0 のままなら go-redis の既定値（3秒）
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
	}
	return opts
}

// Ping は Redis への疎通を確認する（起動時とヘルスチェック用）
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis %s に到達できません: %w", client.Options().Addr, err)
	}
	return nil
}
