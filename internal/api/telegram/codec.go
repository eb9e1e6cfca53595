package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sanosuguru/go-seat-booking-bot/internal/application"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

// コールバックデータは "フロー|操作|引数..." 形式
// Telegram の制限により 64 バイト以内
const (
	maxCallbackBytes = 64
	sep              = "|"

	flowBooking = "b"
	flowCancel  = "c"
	dataAbort   = "x"
)

var (
	ErrCallbackTooLong  = errors.New("コールバックデータが長すぎます")
	ErrInvalidCallback  = errors.New("不正なコールバックデータです")
	ErrUnsupportedInput = errors.New("ボタンに対応しない操作です")
)

// EncodeCallback はアクションをコールバックデータに変換する
func EncodeCallback(action application.Action) (string, error) {
	var parts []string
	switch a := action.(type) {
	case application.StartBooking:
		parts = []string{flowBooking, "start"}
	case application.SelectSection:
		parts = []string{flowBooking, "sec", a.Section}
	case application.SelectRow:
		parts = []string{flowBooking, "row", a.Section, strconv.Itoa(a.Row)}
	case application.ToggleSeat:
		parts = seatParts(flowBooking, a.Seat)
	case application.BackToSections:
		parts = []string{flowBooking, "back"}
	case application.BackToRows:
		parts = []string{flowBooking, "rows", a.Section}
	case application.ConfirmSelection:
		parts = []string{flowBooking, "ok"}
	case application.ShowBookings:
		parts = []string{flowBooking, "list"}
	case application.Abort:
		return dataAbort, nil
	case application.StartCancel:
		parts = []string{flowCancel, "start"}
	case application.CancelSelectSection:
		parts = []string{flowCancel, "sec", a.Section}
	case application.CancelSelectRow:
		parts = []string{flowCancel, "row", a.Section, strconv.Itoa(a.Row)}
	case application.CancelToggleSeat:
		parts = seatParts(flowCancel, a.Seat)
	case application.BackToCancelRows:
		parts = []string{flowCancel, "rows", a.Section}
	case application.ConfirmCancel:
		parts = []string{flowCancel, "ok"}
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedInput, action.Name())
	}

	for _, p := range parts[2:] {
		if strings.Contains(p, sep) {
			return "", fmt.Errorf("%w: %q", ErrInvalidCallback, p)
		}
	}
	data := strings.Join(parts, sep)
	if len(data) > maxCallbackBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackTooLong, len(data))
	}
	return data, nil
}

func seatParts(flow string, ref venue.SeatRef) []string {
	return []string{flow, "seat", ref.Section, strconv.Itoa(ref.Row), strconv.Itoa(ref.Seat)}
}

// DecodeCallback はコールバックデータをアクションに変換する
func DecodeCallback(data string) (application.Action, error) {
	if data == dataAbort {
		return application.Abort{}, nil
	}
	parts := strings.Split(data, sep)
	if len(parts) < 2 {
		return nil, ErrInvalidCallback
	}
	flow, op, args := parts[0], parts[1], parts[2:]

	switch flow {
	case flowBooking:
		return decodeBooking(op, args)
	case flowCancel:
		return decodeCancel(op, args)
	}
	return nil, ErrInvalidCallback
}

func decodeBooking(op string, args []string) (application.Action, error) {
	switch {
	case op == "start" && len(args) == 0:
		return application.StartBooking{}, nil
	case op == "sec" && len(args) == 1:
		return application.SelectSection{Section: args[0]}, nil
	case op == "row" && len(args) == 2:
		row, err := parseNumber(args[1])
		if err != nil {
			return nil, err
		}
		return application.SelectRow{Section: args[0], Row: row}, nil
	case op == "seat" && len(args) == 3:
		ref, err := parseSeat(args)
		if err != nil {
			return nil, err
		}
		return application.ToggleSeat{Seat: ref}, nil
	case op == "back" && len(args) == 0:
		return application.BackToSections{}, nil
	case op == "rows" && len(args) == 1:
		return application.BackToRows{Section: args[0]}, nil
	case op == "ok" && len(args) == 0:
		return application.ConfirmSelection{}, nil
	case op == "list" && len(args) == 0:
		return application.ShowBookings{}, nil
	}
	return nil, ErrInvalidCallback
}

func decodeCancel(op string, args []string) (application.Action, error) {
	switch {
	case op == "start" && len(args) == 0:
		return application.StartCancel{}, nil
	case op == "sec" && len(args) == 1:
		return application.CancelSelectSection{Section: args[0]}, nil
	case op == "row" && len(args) == 2:
		row, err := parseNumber(args[1])
		if err != nil {
			return nil, err
		}
		return application.CancelSelectRow{Section: args[0], Row: row}, nil
	case op == "seat" && len(args) == 3:
		ref, err := parseSeat(args)
		if err != nil {
			return nil, err
		}
		return application.CancelToggleSeat{Seat: ref}, nil
	case op == "rows" && len(args) == 1:
		return application.BackToCancelRows{Section: args[0]}, nil
	case op == "ok" && len(args) == 0:
		return application.ConfirmCancel{}, nil
	}
	return nil, ErrInvalidCallback
}

func parseSeat(args []string) (venue.SeatRef, error) {
	row, err := parseNumber(args[1])
	if err != nil {
		return venue.SeatRef{}, err
	}
	seat, err := parseNumber(args[2])
	if err != nil {
		return venue.SeatRef{}, err
	}
	ref := venue.SeatRef{Section: args[0], Row: row, Seat: seat}
	if err := ref.Validate(); err != nil {
		return venue.SeatRef{}, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}
	return ref, nil
}

func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCallback, s)
	}
	return n, nil
}
