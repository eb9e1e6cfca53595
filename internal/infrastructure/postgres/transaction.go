package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/transaction"
)

var errForeignTx = errors.New("postgres 以外のトランザクションが渡されました")

// TxWrapper は sqlx.Tx を transaction.Tx として扱う
type TxWrapper struct {
	*sqlx.Tx
}

func (t *TxWrapper) Commit() error {
	return t.Tx.Commit()
}

// Rollback はコミット済み・ロールバック済みのトランザクションに対しては何もしない
func (t *TxWrapper) Rollback() error {
	if err := t.Tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// TxManager は予約確定用のトランザクションを開始する
//
// READ COMMITTED では、競合する UPDATE は先行トランザクションの確定を待ってから
// WHERE 条件を再評価する。TryBook の is_booked = FALSE 条件はこれに依存する
type TxManager struct {
	db   *sqlx.DB
	opts *sql.TxOptions
}

func NewTxManager(db *sqlx.DB) *TxManager {
	return &TxManager{db: db, opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted}}
}

func (m *TxManager) Begin(ctx context.Context) (transaction.Tx, error) {
	tx, err := m.db.BeginTxx(ctx, m.opts)
	if err != nil {
		return nil, err
	}
	return &TxWrapper{Tx: tx}, nil
}

// UnwrapTx は transaction.Tx から sqlx.Tx を取り出す
func UnwrapTx(tx transaction.Tx) (*sqlx.Tx, error) {
	if wrapper, ok := tx.(*TxWrapper); ok && wrapper.Tx != nil {
		return wrapper.Tx, nil
	}
	return nil, errForeignTx
}

var _ transaction.Manager = (*TxManager)(nil)
