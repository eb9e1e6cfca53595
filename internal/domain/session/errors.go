package session

import "errors"

// Session ドメインのエラー定義
var (
	ErrNoActiveSession = errors.New("進行中の選択がありません")
	ErrUnexpectedStep  = errors.New("現在のステップではこの操作はできません")
	ErrEmptySelection  = errors.New("座席が選択されていません")
	ErrBusy            = errors.New("前の操作を処理中です")
)
