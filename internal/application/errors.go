package application

import (
	"errors"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/user"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

var inputErrors = []error{
	user.ErrInvalidFullName,
	user.ErrInvalidPhoneNumber,
	user.ErrPhoneNumberTaken,
	session.ErrNoActiveSession,
	session.ErrUnexpectedStep,
	session.ErrEmptySelection,
	session.ErrBusy,
	venue.ErrSectionNotFound,
	venue.ErrRowNotFound,
	venue.ErrSeatNotFound,
	venue.ErrSectionRequired,
	venue.ErrInvalidRowNumber,
	venue.ErrInvalidSeatNumber,
}

// IsInputError は利用者の入力や操作順序に起因するエラーかを返す
// 該当する場合は再入力を促し、ストレージ障害としては扱わない
func IsInputError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
