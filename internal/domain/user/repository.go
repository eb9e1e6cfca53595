package user

import (
	"context"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/transaction"
)

// Repository はユーザーリポジトリのインターフェース
type Repository interface {
	// Upsert は ExternalID をキーに挿入、または氏名と電話番号を更新し、u.ID を設定する（トランザクション必須）
	Upsert(ctx context.Context, tx transaction.Tx, u *User) error

	// FindByExternalID は外部IDからユーザーを取得する
	FindByExternalID(ctx context.Context, externalID int64) (*User, error)
}
