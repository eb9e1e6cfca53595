package user

import "errors"

// User ドメインのエラー定義
var (
	ErrUserNotFound       = errors.New("ユーザーが見つかりません")
	ErrInvalidFullName    = errors.New("氏名の形式が正しくありません")
	ErrInvalidPhoneNumber = errors.New("電話番号の形式が正しくありません")
	ErrPhoneNumberTaken   = errors.New("この電話番号は別のユーザーに登録されています")
)
