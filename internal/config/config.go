package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrBotTokenRequired はボットトークン未設定時に返される（起動不可）
var ErrBotTokenRequired = errors.New("BOT_TOKEN が設定されていません")

// セッションの保存先
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config はアプリケーション設定を表す
type Config struct {
	Env      string
	LogLevel string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Bot      BotConfig
	Booking  BookingConfig
	Session  SessionConfig
	Broker   BrokerConfig
}

// ServerConfig は運用HTTPサーバー（ヘルスチェック・メトリクス）の設定
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// /metrics の Basic 認証（どちらかが空なら認証なし）
	MetricsUser     string
	MetricsPassword string
}

// DatabaseConfig はデータベース設定
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MigrationsPath  string
	MaxOpenConns    int
	MaxIdleConns    int
	// 起動時の接続試行回数（DBコンテナより先にボットが起動する場合に備える）
	ConnectAttempts int
}

// RedisConfig はRedis設定
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int

	// 1 コマンドあたりの読み書きタイムアウト（セッション取得はターンごとに行われる）
	OpTimeout time.Duration
}

// BotConfig はチャットボットの設定
type BotConfig struct {
	Token       string
	Debug       bool
	PollTimeout int // ロングポーリングのタイムアウト（秒）
}

// BookingConfig は予約フローのポリシー設定
type BookingConfig struct {
	// 氏名に要求する最小語数（2 または 3）
	NameMinWords int
}

// SessionConfig は選択セッションの保存設定
type SessionConfig struct {
	Backend       string
	TTL           time.Duration
	SweepInterval time.Duration
	// 会話ごとのターンロック（Redisバックエンド時のみ有効）
	TurnLockTTL time.Duration
}

// BrokerConfig はメッセージブローカー設定（URLが空なら無効）
type BrokerConfig struct {
	URL   string
	Queue string
}

// Enabled はブローカーが設定されているかを返す
func (c *BrokerConfig) Enabled() bool {
	return c.URL != ""
}

// LoadDotEnv は .env ファイルを環境変数に読み込む（ファイルがなければ何もしない）
// 既に設定済みの環境変数は上書きしない
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf(".env の読み込みに失敗しました: %w", err)
	}
	return nil
}

// Load は環境変数から設定を読み込む
func Load() *Config {
	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", ""),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),

			MetricsUser:     os.Getenv("METRICS_USER"),
			MetricsPassword: os.Getenv("METRICS_PASSWORD"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "bot"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "migrations"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnectAttempts: getIntEnv("DB_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getIntEnv("REDIS_DB", 0),
			PoolSize:  getIntEnv("REDIS_POOL_SIZE", 10),
			OpTimeout: getDurationEnv("REDIS_OP_TIMEOUT", 500*time.Millisecond),
		},
		Bot: BotConfig{
			Token:       os.Getenv("BOT_TOKEN"),
			Debug:       getBoolEnv("BOT_DEBUG", false),
			PollTimeout: getIntEnv("BOT_POLL_TIMEOUT", 60),
		},
		Booking: BookingConfig{
			NameMinWords: getIntEnv("BOOKING_NAME_MIN_WORDS", 2),
		},
		Session: SessionConfig{
			Backend:       strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendMemory)),
			TTL:           getDurationEnv("SESSION_TTL", 24*time.Hour),
			SweepInterval: getDurationEnv("SESSION_SWEEP_INTERVAL", 10*time.Minute),
			TurnLockTTL:   getDurationEnv("SESSION_TURN_LOCK_TTL", 30*time.Second),
		},
		Broker: BrokerConfig{
			URL:   firstEnv("AMQP_URL", "RABBITMQ_URL"),
			Queue: getEnv("AMQP_QUEUE", "seat.bookings"),
		},
	}

	// DATABASE_URL / REDIS_URL 形式（PaaS）が与えられた場合は個別設定より優先する
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		applyDatabaseURL(&cfg.Database, raw)
	}
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		applyRedisURL(&cfg.Redis, raw)
	}

	return cfg
}

// Validate は起動に必要な設定が揃っているかを検証する
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return ErrBotTokenRequired
	}
	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND が不正です: %q", c.Session.Backend)
	}
	if c.Booking.NameMinWords < 1 {
		return fmt.Errorf("BOOKING_NAME_MIN_WORDS は1以上である必要があります: %d", c.Booking.NameMinWords)
	}
	return nil
}

// DSN はPostgreSQL接続文字列を返す
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

// Addr はRedis接続アドレスを返す
func (c *RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

func applyDatabaseURL(c *DatabaseConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		c.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.DBName = name
	}
	c.SSLMode = "require"
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.SSLMode = mode
	}
}

func applyRedisURL(c *RedisConfig, raw string) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return
	}
	c.Host = u.Hostname()
	if p := u.Port(); p != "" {
		c.Port = p
	}
	if u.User != nil {
		if pw, ok := u.User.Password(); ok {
			c.Password = pw
		}
	}
	if db := strings.TrimPrefix(u.Path, "/"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.DB = n
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
