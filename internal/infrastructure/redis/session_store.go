package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
)

const sessionKeyPrefix = "session:"

// SessionStore は Redis にセッションを JSON で保存する
// 保存のたびに TTL を更新するため、最後の操作から TTL 経過したセッションは自動的に消える
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) key(k session.Key) string {
	return sessionKeyPrefix + k.String()
}

// Get はセッションを取得する。存在しない場合はアイドル状態の新しいセッションを返す
func (s *SessionStore) Get(ctx context.Context, key session.Key) (*session.Session, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.New(key), nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッション取得に失敗: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// 壊れたデータは破棄してやり直す
		logger.ForConversation(key.ChatID, key.UserID).Warn("読めないセッションを破棄します",
			zap.String("key", s.key(key)),
			zap.Error(err),
		)
		return session.New(key), nil
	}
	sess.Key = key
	return &sess, nil
}

// Save はセッションを保存する。アイドル状態のセッションは削除する
func (s *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	if sess.IsIdle() {
		return s.Delete(ctx, sess.Key)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("セッションのシリアライズに失敗: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.Key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("セッション保存に失敗: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, key session.Key) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("セッション削除に失敗: %w", err)
	}
	return nil
}

// Count は保存されているセッション数を返す（SCAN による概数）
func (s *SessionStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("セッション数の取得に失敗: %w", err)
	}
	return n, nil
}

var _ session.Store = (*SessionStore)(nil)

// Sweep は何もしない。非アクティブなセッションの破棄は Redis の TTL に任せる
func (s *SessionStore) Sweep(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}
