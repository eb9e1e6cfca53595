package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
)

// ErrLeaseLost は TTL 切れなどで他者にターンを奪われた状態で解放しようとしたことを示す
var ErrLeaseLost = errors.New("ターンロックの所有権を失っています")

const turnKeyPrefix = "turn:"

// トークンが一致するときだけ削除する
var releaseTurn = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// turnLease は取得済みのターン。token で所有者を識別する
type turnLease struct {
	key   string
	token string
}

// TurnLocker は同じ会話（chat, user）のターンを複数プロセス間で直列化する
// 後着のターンは短く待ち、取れなければ session.ErrBusy を返す
type TurnLocker struct {
	client     *redis.Client
	ttl        time.Duration
	attempts   int
	retryDelay time.Duration
}

func NewTurnLocker(client *redis.Client, ttl time.Duration) *TurnLocker {
	return &TurnLocker{client: client, ttl: ttl, attempts: 5, retryDelay: 100 * time.Millisecond}
}

// Lock はターンを取得し、解放関数を返す
func (t *TurnLocker) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	lease, err := t.acquire(ctx, key)
	switch {
	case err == nil:
		observeTurnLock("success", start)
	case errors.Is(err, session.ErrBusy):
		observeTurnLock("busy", start)
		return nil, err
	default:
		observeTurnLock("error", start)
		return nil, err
	}

	return func() {
		// ターンの ctx がキャンセルされていても解放する
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := t.release(ctx, lease); err != nil {
			logger.Warn("ターンロックを解放できませんでした", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (t *TurnLocker) acquire(ctx context.Context, key string) (*turnLease, error) {
	lease := &turnLease{key: turnKeyPrefix + key, token: uuid.NewString()}
	for i := 1; ; i++ {
		ok, err := t.client.SetNX(ctx, lease.key, lease.token, t.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("ターンロックの取得に失敗: %w", err)
		}
		if ok {
			return lease, nil
		}
		if i >= t.attempts {
			return nil, fmt.Errorf("%w: %s", session.ErrBusy, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.retryDelay):
		}
	}
}

func (t *TurnLocker) release(ctx context.Context, lease *turnLease) error {
	n, err := releaseTurn.Run(ctx, t.client, []string{lease.key}, lease.token).Int()
	if err != nil {
		return fmt.Errorf("ターンロックの解放に失敗: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

func observeTurnLock(status string, start time.Time) {
	if m := metrics.Get(); m != nil {
		m.TurnLockDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
