package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/api"
	"github.com/sanosuguru/go-seat-booking-bot/internal/api/handler"
	"github.com/sanosuguru/go-seat-booking-bot/internal/api/middleware"
	"github.com/sanosuguru/go-seat-booking-bot/internal/api/telegram"
	"github.com/sanosuguru/go-seat-booking-bot/internal/application"
	"github.com/sanosuguru/go-seat-booking-bot/internal/config"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/user"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
	"github.com/sanosuguru/go-seat-booking-bot/internal/infrastructure/memory"
	"github.com/sanosuguru/go-seat-booking-bot/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-seat-booking-bot/internal/infrastructure/rabbitmq"
	"github.com/sanosuguru/go-seat-booking-bot/internal/infrastructure/redis"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
	"github.com/sanosuguru/go-seat-booking-bot/internal/worker"
)

// sessionBackend はセッションの保存先（メモリまたはRedis）
type sessionBackend interface {
	session.Store
	worker.SessionPruner
}

func main() {
	envFile := pflag.String("env-file", ".env", ".env ファイルのパス（存在しなければ無視）")
	migrate := pflag.Bool("migrate", true, "起動時にマイグレーションを実行する")
	opsServer := pflag.Bool("ops-server", true, "ヘルスチェック・メトリクス用のHTTPサーバーを起動する")
	pflag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Fatal("設定の読み込みに失敗", zap.Error(err))
	}
	cfg := config.Load()

	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("設定が不正です", zap.Error(err))
	}

	m := metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// データベース
	db, err := postgres.ConnectWithRetry(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続エラー", zap.Error(err))
	}
	defer db.Close()

	if *migrate {
		if err := postgres.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
			logger.Fatal("マイグレーションエラー", zap.Error(err))
		}
	}

	txManager := postgres.NewTxManager(db)
	inventory := postgres.NewVenueRepository(db)
	users := postgres.NewUserRepository(db)

	checkers := map[string]handler.Checker{
		"database": func(ctx context.Context) error { return postgres.Ping(ctx, db) },
	}

	// セッション
	var (
		sessions sessionBackend
		locker   application.TurnLocker
	)
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		client := redis.NewClient(&cfg.Redis)
		defer client.Close()
		if err := pingRedis(ctx, client); err != nil {
			logger.Fatal("Redis接続エラー", zap.Error(err))
		}
		sessions = redis.NewSessionStore(client, cfg.Session.TTL)
		locker = redis.NewTurnLocker(client, cfg.Session.TurnLockTTL)
		checkers["redis"] = func(ctx context.Context) error { return redis.Ping(ctx, client) }
	default:
		sessions = memory.NewSessionStore()
	}

	// イベント通知（任意）
	var publisher venue.EventPublisher
	if cfg.Broker.Enabled() {
		p := rabbitmq.NewPublisher(cfg.Broker.URL, cfg.Broker.Queue)
		defer p.Close()
		publisher = p
		logger.Info("予約イベントを通知します", zap.String("queue", cfg.Broker.Queue))
	}

	service := application.NewBookingService(
		txManager,
		inventory,
		users,
		sessions,
		user.NewIdentityValidator(cfg.Booking.NameMinWords),
		locker,
		publisher,
	)

	botAPI, err := newBotAPI(cfg.Bot)
	if err != nil {
		logger.Fatal("Telegram への接続に失敗", zap.Error(err))
	}
	bot := telegram.NewBot(botAPI, service, cfg.Bot.PollTimeout, cfg.Booking.NameMinWords)

	var wg sync.WaitGroup

	sweeper := worker.NewSessionSweeper(sessions, cfg.Session.SweepInterval, cfg.Session.TTL)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()

	var ops *echo.Echo
	if *opsServer {
		ops = api.NewOpsServer(cfg.Server, handler.NewHealthHandler(checkers), m, nil, middleware.NewMetricsConfig(cfg.Server))
		go func() {
			logger.Info("運用サーバーを起動します", zap.String("port", cfg.Server.Port))
			if err := ops.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("運用サーバーエラー", zap.Error(err))
				stop()
			}
		}()
	}

	logger.Info("ボットを起動します",
		zap.String("account", botAPI.Self.UserName),
		zap.String("session_backend", cfg.Session.Backend),
	)
	if err := bot.Run(ctx); err != nil {
		logger.Error("ボットが停止しました", zap.Error(err))
	}

	logger.Info("シャットダウンしています...")
	stop()
	wg.Wait()

	if ops != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Error("運用サーバーのシャットダウンエラー", zap.Error(err))
		}
	}

	logger.Info("正常にシャットダウンしました")
}

func newBotAPI(cfg config.BotConfig) (*tgbotapi.BotAPI, error) {
	if err := tgbotapi.SetLogger(zap.NewStdLog(logger.Get())); err != nil {
		return nil, err
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	botAPI.Debug = cfg.Debug
	return botAPI, nil
}

func pingRedis(ctx context.Context, client *goredis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return redis.Ping(ctx, client)
}
