package application

import (
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

// ReplyKind は状態機械の出力の種類
type ReplyKind string

const (
	ReplyNoSections        ReplyKind = "no_sections"
	ReplySections          ReplyKind = "sections"
	ReplyRows              ReplyKind = "rows"
	ReplySeats             ReplyKind = "seats"
	ReplyPromptFullName    ReplyKind = "prompt_full_name"
	ReplyPromptPhoneNumber ReplyKind = "prompt_phone_number"
	ReplyBooked            ReplyKind = "booked"
	ReplyBookingConflict   ReplyKind = "booking_conflict"
	ReplyAborted           ReplyKind = "aborted"
	ReplyBookings          ReplyKind = "bookings"
	ReplyNoBookings        ReplyKind = "no_bookings"

	ReplyCancelSections ReplyKind = "cancel_sections"
	ReplyCancelRows     ReplyKind = "cancel_rows"
	ReplyCancelSeats    ReplyKind = "cancel_seats"
	ReplyCancelled      ReplyKind = "cancelled"
	ReplyCancelPartial  ReplyKind = "cancel_partial"
)

// SeatOption は座席一覧の1項目
type SeatOption struct {
	Number  int
	Pending bool // このセッションで選択中
	Owned   bool // この利用者の予約済み座席
	Taken   bool // 予約済み（所有者を問わない）
}

// Reply は状態機械の出力。表示方法はプレゼンテーション層に委ねる
type Reply struct {
	Kind ReplyKind

	Sections []string
	Section  string
	Row      int
	Rows     []venue.RowAvailability

	// キャンセルフローで自分の予約がある列番号
	RowNumbers []int

	Seats []SeatOption

	// 現在の選択（予約フローではこれから予約、キャンセルフローではこれから解放する座席）
	Pending []venue.SeatRef

	// トグル操作の結果（通知表示用）
	Toggle *session.ToggleResult

	// 予約・解放に成功した座席
	Affected []venue.SeatRef
	// 予約できなかった、または解放できなかった座席
	Failed *venue.SeatRef

	// 利用者の予約一覧
	Bookings []venue.SeatRef

	// 氏名入力で要求する最小語数
	NameMinWords int
}
