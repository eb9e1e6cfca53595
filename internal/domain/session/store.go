package session

import "context"

// Store はセッションの保存先
// 非アクティブなセッションの破棄（TTL等）は実装側のポリシーに従う
type Store interface {
	// Get はセッションを取得する。存在しない場合はアイドル状態の新しいセッションを返す
	Get(ctx context.Context, key Key) (*Session, error)

	// Save はセッションを保存する
	Save(ctx context.Context, s *Session) error

	// Delete はセッションを削除する
	Delete(ctx context.Context, key Key) error
}
