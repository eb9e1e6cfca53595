package user

import "strings"

// User は予約者を表す
// ExternalID はチャットプラットフォーム上の不変な利用者IDで、1IDにつき1レコード
type User struct {
	ID          int64
	ExternalID  int64
	FullName    string
	PhoneNumber string
}

// NewUser は新しいユーザーを作成する
func NewUser(externalID int64, fullName, phoneNumber string) *User {
	return &User{
		ExternalID:  externalID,
		FullName:    NormalizeFullName(fullName),
		PhoneNumber: strings.TrimSpace(phoneNumber),
	}
}

// NormalizeFullName は前後の空白を除き、連続する空白を1つにまとめる
func NormalizeFullName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
