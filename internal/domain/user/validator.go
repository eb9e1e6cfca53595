package user

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultNameMinWords は氏名に要求される最小語数
const DefaultNameMinWords = 2

var phoneRegex = regexp.MustCompile(`^\+?\d{12}$`)

// IdentityValidator は予約確定時の本人情報を検証する
type IdentityValidator struct {
	validate     *validator.Validate
	nameMinWords int
}

// NewIdentityValidator は新しいバリデーターを作成する
// nameMinWords が1未満の場合は DefaultNameMinWords を使う
func NewIdentityValidator(nameMinWords int) *IdentityValidator {
	if nameMinWords < 1 {
		nameMinWords = DefaultNameMinWords
	}
	v := validator.New()
	// 登録はタグ名とシグネチャが固定なので失敗しない
	_ = v.RegisterValidation("min_words", validateMinWords)
	_ = v.RegisterValidation("phone", validatePhone)
	return &IdentityValidator{validate: v, nameMinWords: nameMinWords}
}

// NameMinWords は現在の氏名ポリシーの最小語数を返す
func (iv *IdentityValidator) NameMinWords() int {
	return iv.nameMinWords
}

// ValidateFullName は氏名が最小語数以上の単語から成るかを検証する
func (iv *IdentityValidator) ValidateFullName(fullName string) error {
	tag := fmt.Sprintf("required,min_words=%d", iv.nameMinWords)
	if err := iv.validate.Var(strings.TrimSpace(fullName), tag); err != nil {
		return ErrInvalidFullName
	}
	return nil
}

// ValidatePhoneNumber は電話番号が ^\+?\d{12}$ に一致するかを検証する
func (iv *IdentityValidator) ValidatePhoneNumber(phone string) error {
	if err := iv.validate.Var(strings.TrimSpace(phone), "required,phone"); err != nil {
		return ErrInvalidPhoneNumber
	}
	return nil
}

func validateMinWords(fl validator.FieldLevel) bool {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(strings.Fields(fl.Field().String())) >= n
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}
