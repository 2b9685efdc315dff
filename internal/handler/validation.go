package handler

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"clouddrive/internal/domain"
)

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.Validation("email should not be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return domain.Validation("email must be an email")
	}
	return nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(username))
	switch {
	case n == 0:
		return domain.Validation("username should not be empty")
	case n < 3:
		return domain.Validation("username must be longer than or equal to 3 characters")
	case n > 20:
		return domain.Validation("username must be shorter than or equal to 20 characters")
	}
	return nil
}

// maxPasswordBytes - предел bcrypt. Многобайтовые символы могут превысить
// его при допустимой длине в символах.
const maxPasswordBytes = 72

func validatePassword(field, password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n == 0:
		return domain.Validation(field + " should not be empty")
	case n < 8 || n > 32:
		return domain.Validation(field + " must be longer than or equal to 8 and shorter than or equal to 32 characters")
	case len(password) > maxPasswordBytes:
		return domain.Validation(fmt.Sprintf("%s must be shorter than or equal to %d bytes", field, maxPasswordBytes))
	}
	return nil
}

func validateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return domain.Validation(field + " should not be empty")
	}
	return nil
}

// firstError возвращает первую ошибку проверки.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
