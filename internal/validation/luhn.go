// Package validation содержит функции валидации входных данных.
package validation

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// IsValidOrderNumber проверяет корректность номера заказа по алгоритму Луна.
func IsValidOrderNumber(number string) bool {
	if number == "" {
		return false
	}

	sum := 0
	double := false

	for i := len(number) - 1; i >= 0; i-- {
		ch := rune(number[i])
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}

	return sum%10 == 0
}

// checkDigit вычисляет контрольную цифру Луна для последовательности цифр.
func checkDigit(payload string) int {
	sum := 0
	double := true
	for i := len(payload) - 1; i >= 0; i-- {
		digit := int(payload[i] - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return (10 - sum%10) % 10
}

// FormatOrderNumber возвращает отображаемый номер заказа вида 000123-4,
// где последняя цифра является контрольной цифра Луна.
func FormatOrderNumber(seq int64) string {
	payload := fmt.Sprintf("%06d", seq)
	return fmt.Sprintf("%s-%d", payload, checkDigit(payload))
}

// ParseOrderNumber разбирает отображаемый номер заказа и возвращает порядковый номер.
func ParseOrderNumber(display string) (int64, error) {
	digits := strings.ReplaceAll(strings.TrimSpace(display), "-", "")
	if len(digits) < 2 || !IsValidOrderNumber(digits) {
		return 0, fmt.Errorf("invalid order number %q", display)
	}
	seq, err := strconv.ParseInt(digits[:len(digits)-1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse order number: %w", err)
	}
	return seq, nil
}
