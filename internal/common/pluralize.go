// Package common — pluralize.go: русская плюрализация для сообщений бота.
package common

import "math"

// PluralizeRupees возвращает правильную форму слова «рупия» для числа n.
//
// Правила русского языка:
//   - n%10==1 И n%100!=11 → "рупия" (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → "рупии" (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → "рупий" (0, 5-20, 25-30, 100, ...)
func PluralizeRupees(n int64) string {
	// Берём абсолютное значение для отрицательных чисел
	absN := int64(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "рупия"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "рупии"
	}
	return "рупий"
}

// PluralizePlayers возвращает правильную форму слова «игрок».
func PluralizePlayers(n int) string {
	absN := int(math.Abs(float64(n)))
	lastDigit := absN % 10
	lastTwoDigits := absN % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return "игрок"
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return "игрока"
	}
	return "игроков"
}
