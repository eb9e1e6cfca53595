package venue

import "time"

// EventType は予約イベントの種類
type EventType string

const (
	EventBookingCommitted EventType = "booking.committed"
	EventBookingCancelled EventType = "booking.cancelled"
)

// BookingEvent は座席の予約・解放が永続化された後に発行される
type BookingEvent struct {
	Type       EventType `json:"type"`
	UserID     int64     `json:"user_id"`
	ExternalID int64     `json:"external_id"`
	Seats      []SeatRef `json:"seats"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewBookingEvent は新しいイベントを作成する
func NewBookingEvent(t EventType, userID, externalID int64, seats []SeatRef) BookingEvent {
	copied := make([]SeatRef, len(seats))
	copy(copied, seats)
	return BookingEvent{
		Type:       t,
		UserID:     userID,
		ExternalID: externalID,
		Seats:      copied,
		OccurredAt: time.Now().UTC(),
	}
}
