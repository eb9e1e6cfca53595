package venue

import (
	"context"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/transaction"
)

// Repository は座席在庫リポジトリのインターフェース
type Repository interface {
	// ListSections は全区画を取得する
	ListSections(ctx context.Context) ([]Section, error)

	// ListRows は区画内の列を空席数付きで取得する
	ListRows(ctx context.Context, section string) ([]RowAvailability, error)

	// ListSeats は列内の座席を座席番号順に取得する
	ListSeats(ctx context.Context, section string, row int) ([]Seat, error)

	// TryBook は空席の場合のみ座席を予約する（単一の条件付き更新、トランザクション必須）
	// 更新件数が0なら ErrSeatAlreadyBooked を返す
	TryBook(ctx context.Context, tx transaction.Tx, ref SeatRef, userID int64) error

	// TryRelease はユーザーが所有する座席のみ解放する（単一の条件付き更新）
	// 更新件数が1でなければ ErrSeatNotOwned を返す
	TryRelease(ctx context.Context, ref SeatRef, userID int64) error

	// ListOwnedSeats はユーザーが予約している座席を取得する
	ListOwnedSeats(ctx context.Context, userID int64) ([]SeatRef, error)
}

// EventPublisher は予約イベントを外部へ通知する
type EventPublisher interface {
	Publish(ctx context.Context, event BookingEvent) error
}
