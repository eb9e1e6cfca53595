package venue

import (
	"errors"
	"fmt"
)

// Venue ドメインのエラー定義
var (
	ErrSectionNotFound   = errors.New("区画が見つかりません")
	ErrRowNotFound       = errors.New("列が見つかりません")
	ErrSeatNotFound      = errors.New("座席が見つかりません")
	ErrSeatAlreadyBooked = errors.New("座席は既に予約されています")
	ErrSeatNotOwned      = errors.New("座席はあなたの予約ではないか、既に解放されています")
	ErrSectionRequired   = errors.New("区画は必須です")
	ErrInvalidRowNumber  = errors.New("列番号は1以上である必要があります")
	ErrInvalidSeatNumber = errors.New("座席番号は1以上である必要があります")
)

// SeatError は特定の座席に紐づくエラー
type SeatError struct {
	Seat SeatRef
	Err  error
}

func (e *SeatError) Error() string {
	return fmt.Sprintf("%s: %v", e.Seat, e.Err)
}

func (e *SeatError) Unwrap() error {
	return e.Err
}
