package transaction

import (
	"context"
	"fmt"
)

// Tx はトランザクションを表すインターフェース
// ドメイン層がインフラ層（sqlx等）に依存しないようにするための抽象化
type Tx interface {
	Commit() error
	Rollback() error
}

// Manager はトランザクションを管理するインターフェース
type Manager interface {
	Begin(ctx context.Context) (Tx, error)
}

// Run は fn をトランザクション内で実行する
// fn がエラーを返した場合はロールバックし、そのエラーをそのまま返す
func Run(ctx context.Context, m Manager, fn func(tx Tx) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}
