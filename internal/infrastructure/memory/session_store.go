package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
)

// SessionStore はプロセス内メモリにセッションを保持する
// 単一プロセス運用向け。複数インスタンスで動かす場合は Redis 実装を使う
type SessionStore struct {
	mu       sync.Mutex
	sessions map[session.Key]*session.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[session.Key]*session.Session)}
}

// Get はセッションのコピーを返す。保存されていなければアイドル状態の新しいセッションを返す
func (s *SessionStore) Get(_ context.Context, key session.Key) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return clone(sess), nil
	}
	return session.New(key), nil
}

// Save はセッションのコピーを保存する。アイドル状態のセッションは保持しない
func (s *SessionStore) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.IsIdle() {
		delete(s.sessions, sess.Key)
		return nil
	}
	s.sessions[sess.Key] = clone(sess)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, key session.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, key)
	return nil
}

// Sweep は idle 以上更新のないセッションを破棄し、破棄した件数を返す
func (s *SessionStore) Sweep(_ context.Context, idle time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, sess := range s.sessions {
		if sess.IdleFor(now) >= idle {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// Count は保持しているセッション数を返す
func (s *SessionStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions), nil
}

func clone(sess *session.Session) *session.Session {
	c := *sess
	c.Pending = sess.PendingSeats()
	return &c
}
