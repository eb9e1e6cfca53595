package session

import (
	"fmt"
	"time"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

// Step は選択フローの現在のステップ
type Step string

const (
	StepIdle                Step = "idle"
	StepSelectSection       Step = "select_section"
	StepSelectRow           Step = "select_row"
	StepSelectSeat          Step = "select_seat"
	StepAwaitingFullName    Step = "awaiting_full_name"
	StepAwaitingPhoneNumber Step = "awaiting_phone_number"

	StepCancelSelectSection Step = "cancel_select_section"
	StepCancelSelectRow     Step = "cancel_select_row"
	StepCancelSelectSeat    Step = "cancel_select_seat"
)

// IsCancellation はキャンセルフロー中のステップかを返す
func (s Step) IsCancellation() bool {
	switch s {
	case StepCancelSelectSection, StepCancelSelectRow, StepCancelSelectSeat:
		return true
	}
	return false
}

// Key は会話と利用者の組でセッションを特定する
type Key struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}

// Session は未確定の座席選択を複数ターンにわたって保持する
// 同一利用者の会話でのみ使われ、利用者間で共有されない
type Session struct {
	Key       Key             `json:"key"`
	Step      Step            `json:"step"`
	Section   string          `json:"section,omitempty"`
	Row       int             `json:"row,omitempty"`
	Pending   []venue.SeatRef `json:"pending,omitempty"`
	FullName  string          `json:"full_name,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New はアイドル状態のセッションを作成する
func New(key Key) *Session {
	return &Session{Key: key, Step: StepIdle, UpdatedAt: time.Now()}
}

// Start は予約フローを最初からやり直す
func (s *Session) Start() {
	s.reset(StepSelectSection)
}

// StartCancel はキャンセルフローを最初からやり直す
func (s *Session) StartCancel() {
	s.reset(StepCancelSelectSection)
}

// Clear は選択中の座席を空にし、アイドル状態へ戻す
func (s *Session) Clear() {
	s.reset(StepIdle)
}

func (s *Session) reset(step Step) {
	s.Step = step
	s.Section = ""
	s.Row = 0
	s.Pending = nil
	s.FullName = ""
	s.Touch()
}

// Touch は最終更新時刻を更新する
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// IsIdle はフローが進行中でないかを返す
func (s *Session) IsIdle() bool {
	return s.Step == StepIdle || s.Step == ""
}

// Contains は座席が選択中かを返す
func (s *Session) Contains(ref venue.SeatRef) bool {
	return s.indexOf(ref) >= 0
}

func (s *Session) indexOf(ref venue.SeatRef) int {
	for i, p := range s.Pending {
		if p == ref {
			return i
		}
	}
	return -1
}

// ToggleResult は Toggle の結果
type ToggleResult struct {
	Seat     venue.SeatRef
	Selected bool // 操作後に選択中か
	Rejected bool // blocked のため追加しなかった
}

// Toggle は座席の選択状態を反転する
// 選択中なら外し、未選択なら追加する。blocked な座席は追加せず Rejected を返す
// 予約フローでは「自分の予約済み座席」、キャンセルフローでは「自分の予約でない座席」が blocked
func (s *Session) Toggle(ref venue.SeatRef, blocked bool) ToggleResult {
	s.Touch()
	if i := s.indexOf(ref); i >= 0 {
		s.Pending = append(s.Pending[:i:i], s.Pending[i+1:]...)
		return ToggleResult{Seat: ref, Selected: false}
	}
	if blocked {
		return ToggleResult{Seat: ref, Selected: false, Rejected: true}
	}
	s.Pending = append(s.Pending, ref)
	return ToggleResult{Seat: ref, Selected: true}
}

// Remove は座席を選択から外す
func (s *Session) Remove(ref venue.SeatRef) bool {
	i := s.indexOf(ref)
	if i < 0 {
		return false
	}
	s.Pending = append(s.Pending[:i:i], s.Pending[i+1:]...)
	s.Touch()
	return true
}

// PendingSeats は選択中の座席のコピーを返す
func (s *Session) PendingSeats() []venue.SeatRef {
	out := make([]venue.SeatRef, len(s.Pending))
	copy(out, s.Pending)
	return out
}

// IdleFor は最終更新からの経過時間を返す
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.UpdatedAt)
}
