package venue

import (
	"cmp"
	"fmt"
)

// Section は会場の区画を表す（作成後は不変）
type Section struct {
	ID   int64
	Name string
}

// RowAvailability は列ごとの空席状況を表す
// FreeSeats は問い合わせ時点で計算され、キャッシュされない
type RowAvailability struct {
	Number     int
	TotalSeats int
	FreeSeats  int
}

// BookedSeats は予約済み座席数を返す
func (r RowAvailability) BookedSeats() int {
	return r.TotalSeats - r.FreeSeats
}

// Seat は列内の座席を表す
type Seat struct {
	Number   int
	BookedBy *int64 // users.id、空席なら nil
}

// IsFree は座席が空いているかを返す
func (s Seat) IsFree() bool {
	return s.BookedBy == nil
}

// IsOwnedBy は座席が指定ユーザーに予約されているかを返す
func (s Seat) IsOwnedBy(userID int64) bool {
	return s.BookedBy != nil && *s.BookedBy == userID
}

// SeatRef は (区画, 列, 座席) の組で座席を特定する
type SeatRef struct {
	Section string `json:"section"`
	Row     int    `json:"row"`
	Seat    int    `json:"seat"`
}

func (r SeatRef) String() string {
	return fmt.Sprintf("%s/%d/%d", r.Section, r.Row, r.Seat)
}

// Validate は座席参照の検証を行う
func (r SeatRef) Validate() error {
	if r.Section == "" {
		return ErrSectionRequired
	}
	if r.Row <= 0 {
		return ErrInvalidRowNumber
	}
	if r.Seat <= 0 {
		return ErrInvalidSeatNumber
	}
	return nil
}

// InRow は座席参照が指定の区画・列に属するかを返す
func (r SeatRef) InRow(section string, row int) bool {
	return r.Section == section && r.Row == row
}

// CompareSeatRefs は (区画, 列, 座席) の順で比較する
// 複数席を更新するトランザクションはこの順で行ロックを取る
func CompareSeatRefs(a, b SeatRef) int {
	return cmp.Or(
		cmp.Compare(a.Section, b.Section),
		cmp.Compare(a.Row, b.Row),
		cmp.Compare(a.Seat, b.Seat),
	)
}
