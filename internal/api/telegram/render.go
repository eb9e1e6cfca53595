package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sanosuguru/go-seat-booking-bot/internal/application"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

const (
	sectionColumns = 2
	gridColumns    = 3

	markPending = "✅"
	markOwned   = "★"
	markTaken   = "✖"
)

// view は Reply を Telegram 向けに描画した結果
type view struct {
	Text   string
	Markup *tgbotapi.InlineKeyboardMarkup

	// Notice はコールバックへの応答として表示する短い通知
	Notice string

	// Replace は選択メッセージを削除して新しいメッセージとして送る
	Replace bool
}

// render は状態機械の出力を文面とインラインキーボードに変換する
func render(reply *application.Reply) (*view, error) {
	switch reply.Kind {
	case application.ReplyNoSections:
		return &view{Text: "現在予約できる区画はありません。"}, nil

	case application.ReplySections:
		text := withPending("区画を選んでください。", reply.Pending)
		kb, err := sectionKeyboard(reply.Sections, func(name string) application.Action {
			return application.SelectSection{Section: name}
		}, bookingControls(len(reply.Pending), nil))
		return &view{Text: text, Markup: kb}, err

	case application.ReplyRows:
		text := withPending(fmt.Sprintf("区画 %s の列を選んでください。", reply.Section), reply.Pending)
		buttons := make([]button, len(reply.Rows))
		for i, r := range reply.Rows {
			buttons[i] = button{
				label:  fmt.Sprintf("%d列 (空%d)", r.Number, r.FreeSeats),
				action: application.SelectRow{Section: reply.Section, Row: r.Number},
			}
		}
		kb, err := gridKeyboard(buttons, bookingControls(len(reply.Pending), application.BackToSections{}))
		return &view{Text: text, Markup: kb}, err

	case application.ReplySeats:
		text := withPending(fmt.Sprintf("区画 %s %d列の座席を選んでください。\n%s 選択中 %s 予約済み %s 他の予約",
			reply.Section, reply.Row, markPending, markOwned, markTaken), reply.Pending)
		buttons := make([]button, len(reply.Seats))
		for i, s := range reply.Seats {
			buttons[i] = button{
				label:  seatLabel(s),
				action: application.ToggleSeat{Seat: venue.SeatRef{Section: reply.Section, Row: reply.Row, Seat: s.Number}},
			}
		}
		kb, err := gridKeyboard(buttons, bookingControls(len(reply.Pending), application.BackToRows{Section: reply.Section}))
		return &view{Text: text, Markup: kb, Notice: toggleNotice(reply)}, err

	case application.ReplyPromptFullName:
		return &view{
			Text:    fmt.Sprintf("%s\n\n氏名を入力してください（%d語以上）。", describeSeats("選択した座席", reply.Pending), reply.NameMinWords),
			Replace: true,
		}, nil

	case application.ReplyPromptPhoneNumber:
		return &view{Text: "電話番号を入力してください（例: +375291234567）。"}, nil

	case application.ReplyBooked:
		return &view{Text: describeSeats("予約が完了しました", reply.Affected)}, nil

	case application.ReplyBookingConflict:
		text := fmt.Sprintf("座席 %s は他の方に予約されました。選択を見直してください。", reply.Failed)
		text = withPending(text, reply.Pending)
		kb, err := sectionKeyboard(reply.Sections, func(name string) application.Action {
			return application.SelectSection{Section: name}
		}, bookingControls(len(reply.Pending), nil))
		return &view{Text: text, Markup: kb}, err

	case application.ReplyAborted:
		return &view{Text: "選択を中止しました。"}, nil

	case application.ReplyBookings:
		return &view{Text: describeSeats("あなたの予約", reply.Bookings)}, nil

	case application.ReplyNoBookings:
		return &view{Text: "予約はありません。"}, nil

	case application.ReplyCancelSections:
		text := withPending("キャンセルする座席の区画を選んでください。", reply.Pending)
		kb, err := sectionKeyboard(reply.Sections, func(name string) application.Action {
			return application.CancelSelectSection{Section: name}
		}, cancelControls(len(reply.Pending), nil))
		return &view{Text: text, Markup: kb}, err

	case application.ReplyCancelRows:
		text := withPending(fmt.Sprintf("区画 %s の列を選んでください。", reply.Section), reply.Pending)
		buttons := make([]button, len(reply.RowNumbers))
		for i, n := range reply.RowNumbers {
			buttons[i] = button{
				label:  fmt.Sprintf("%d列", n),
				action: application.CancelSelectRow{Section: reply.Section, Row: n},
			}
		}
		kb, err := gridKeyboard(buttons, cancelControls(len(reply.Pending), application.StartCancel{}))
		return &view{Text: text, Markup: kb}, err

	case application.ReplyCancelSeats:
		text := withPending(fmt.Sprintf("区画 %s %d列でキャンセルする座席を選んでください。", reply.Section, reply.Row), reply.Pending)
		buttons := make([]button, len(reply.Seats))
		for i, s := range reply.Seats {
			buttons[i] = button{
				label:  seatLabel(s),
				action: application.CancelToggleSeat{Seat: venue.SeatRef{Section: reply.Section, Row: reply.Row, Seat: s.Number}},
			}
		}
		kb, err := gridKeyboard(buttons, cancelControls(len(reply.Pending), application.BackToCancelRows{Section: reply.Section}))
		return &view{Text: text, Markup: kb, Notice: toggleNotice(reply)}, err

	case application.ReplyCancelled:
		return &view{Text: describeSeats("キャンセルしました", reply.Affected)}, nil

	case application.ReplyCancelPartial:
		var b strings.Builder
		if len(reply.Affected) > 0 {
			b.WriteString(describeSeats("キャンセルしました", reply.Affected))
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "座席 %s はあなたの予約ではないか、既に解放されています。以降の座席は処理していません。", reply.Failed)
		return &view{Text: b.String()}, nil
	}
	return nil, fmt.Errorf("未対応の応答: %s", reply.Kind)
}

type button struct {
	label  string
	action application.Action
}

func (b button) build() (tgbotapi.InlineKeyboardButton, error) {
	data, err := EncodeCallback(b.action)
	if err != nil {
		return tgbotapi.InlineKeyboardButton{}, err
	}
	return tgbotapi.NewInlineKeyboardButtonData(b.label, data), nil
}

func sectionKeyboard(names []string, action func(string) application.Action, controls []button) (*tgbotapi.InlineKeyboardMarkup, error) {
	buttons := make([]button, len(names))
	for i, name := range names {
		buttons[i] = button{label: name, action: action(name)}
	}
	return keyboard(buttons, sectionColumns, controls)
}

func gridKeyboard(buttons, controls []button) (*tgbotapi.InlineKeyboardMarkup, error) {
	return keyboard(buttons, gridColumns, controls)
}

// keyboard は buttons を columns 列で並べ、最後に操作ボタンの行を追加する
func keyboard(buttons []button, columns int, controls []button) (*tgbotapi.InlineKeyboardMarkup, error) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for start := 0; start < len(buttons); start += columns {
		end := min(start+columns, len(buttons))
		row, err := buildRow(buttons[start:end])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if len(controls) > 0 {
		row, err := buildRow(controls)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup, nil
}

func buildRow(buttons []button) ([]tgbotapi.InlineKeyboardButton, error) {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		btn, err := b.build()
		if err != nil {
			return nil, err
		}
		row = append(row, btn)
	}
	return row, nil
}

// bookingControls は 戻る / 確定(n) / 中止 の行を作る
func bookingControls(pending int, back application.Action) []button {
	var controls []button
	if back != nil {
		controls = append(controls, button{label: "« 戻る", action: back})
	}
	if pending > 0 {
		controls = append(controls, button{label: fmt.Sprintf("確定(%d)", pending), action: application.ConfirmSelection{}})
	}
	return append(controls, button{label: "中止", action: application.Abort{}})
}

func cancelControls(pending int, back application.Action) []button {
	var controls []button
	switch back.(type) {
	case nil:
	case application.StartCancel:
		controls = append(controls, button{label: "« 区画へ", action: back})
	default:
		controls = append(controls, button{label: "« 戻る", action: back})
	}
	if pending > 0 {
		controls = append(controls, button{label: fmt.Sprintf("キャンセル確定(%d)", pending), action: application.ConfirmCancel{}})
	}
	return append(controls, button{label: "中止", action: application.Abort{}})
}

func seatLabel(s application.SeatOption) string {
	n := strconv.Itoa(s.Number)
	switch {
	case s.Pending:
		return markPending + n
	case s.Owned:
		return markOwned + n
	case s.Taken:
		return markTaken + n
	}
	return n
}

func toggleNotice(reply *application.Reply) string {
	t := reply.Toggle
	if t == nil {
		return ""
	}
	switch {
	case t.Rejected && reply.Kind == application.ReplyCancelSeats:
		return fmt.Sprintf("%s はあなたの予約ではありません", t.Seat)
	case t.Rejected:
		return fmt.Sprintf("%s は既にあなたが予約しています", t.Seat)
	case t.Selected:
		return fmt.Sprintf("%s を選択しました", t.Seat)
	}
	return fmt.Sprintf("%s の選択を外しました", t.Seat)
}

func withPending(text string, pending []venue.SeatRef) string {
	if len(pending) == 0 {
		return text
	}
	return text + "\n\n" + describeSeats("選択中", pending)
}

func describeSeats(title string, seats []venue.SeatRef) string {
	labels := make([]string, len(seats))
	for i, s := range seats {
		labels[i] = s.String()
	}
	return fmt.Sprintf("%s: %s", title, strings.Join(labels, ", "))
}
