package application

import (
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

// Actor は操作を行う利用者と会話を表す
type Actor struct {
	ChatID     int64
	ExternalID int64 // チャットプラットフォーム上の利用者ID
}

// SessionKey は Actor に対応するセッションキーを返す
func (a Actor) SessionKey() session.Key {
	return session.Key{ChatID: a.ChatID, UserID: a.ExternalID}
}

// Action は状態機械への入力
type Action interface {
	// Name はログやメトリクスのラベルに使う名前
	Name() string
}

// 予約フロー
type StartBooking struct{}

type SelectSection struct {
	Section string
}

type SelectRow struct {
	Section string
	Row     int
}

type ToggleSeat struct {
	Seat venue.SeatRef
}

type BackToSections struct{}

type BackToRows struct {
	Section string
}

type ConfirmSelection struct{}

// SubmitText は自由入力（氏名・電話番号）
type SubmitText struct {
	Text string
}

type Abort struct{}

type ShowBookings struct{}

// キャンセルフロー
type StartCancel struct{}

type CancelSelectSection struct {
	Section string
}

type CancelSelectRow struct {
	Section string
	Row     int
}

type CancelToggleSeat struct {
	Seat venue.SeatRef
}

type BackToCancelRows struct {
	Section string
}

type ConfirmCancel struct{}

func (StartBooking) Name() string        { return "start_booking" }
func (SelectSection) Name() string       { return "select_section" }
func (SelectRow) Name() string           { return "select_row" }
func (ToggleSeat) Name() string          { return "toggle_seat" }
func (BackToSections) Name() string      { return "back_to_sections" }
func (BackToRows) Name() string          { return "back_to_rows" }
func (ConfirmSelection) Name() string    { return "confirm_selection" }
func (SubmitText) Name() string          { return "submit_text" }
func (Abort) Name() string               { return "abort" }
func (ShowBookings) Name() string        { return "show_bookings" }
func (StartCancel) Name() string         { return "start_cancel" }
func (CancelSelectSection) Name() string { return "cancel_select_section" }
func (CancelSelectRow) Name() string     { return "cancel_select_row" }
func (CancelToggleSeat) Name() string    { return "cancel_toggle_seat" }
func (BackToCancelRows) Name() string    { return "back_to_cancel_rows" }
func (ConfirmCancel) Name() string       { return "confirm_cancel" }
