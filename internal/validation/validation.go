// Package validation содержит функции валидации входных данных.
package validation

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// DateLayout: формат календарной даты во входных данных.
const DateLayout = "2006-01-02"

var trackingNumberRe = regexp.MustCompile(`^TRK-\d{13,}-\d{3}$`)

// IsValidTrackingNumber проверяет формат трек-номера TRK-<миллисекунды>-<три цифры>.
func IsValidTrackingNumber(number string) bool {
	return trackingNumberRe.MatchString(number)
}

// IsValidUsername допускает буквы, цифры и символы . _ - длиной до 64 символов.
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 64 {
		return false
	}
	for _, ch := range username {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || strings.ContainsRune("._-", ch) {
			continue
		}
		return false
	}
	return true
}

// IsValidEmail проверяет, что строка содержит один адрес без отображаемого имени.
func IsValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// ParseDate разбирает календарную дату в указанном часовом поясе.
// Пустая строка даёт nil без ошибки.
func ParseDate(value string, loc *time.Location) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, value, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
