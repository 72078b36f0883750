// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование сумм в рупиях, работа с временем (IST).
package common

import (
	"fmt"
	"time"
)

// FormatMoney форматирует сумму в рупиях.
// Пример: FormatMoney(400) → "₹400", FormatMoney(-95) → "-₹95"
func FormatMoney(amount int64) string {
	if amount < 0 {
		return fmt.Sprintf("-₹%d", -amount)
	}
	return fmt.Sprintf("₹%d", amount)
}

// FormatBalance форматирует баланс с правильной формой слова «рупия».
// Пример: FormatBalance(150) → "150 рупий"
func FormatBalance(balance int64) string {
	return fmt.Sprintf("%d %s", balance, PluralizeRupees(balance))
}

// GetISTTime возвращает текущее время в часовом поясе Индии (Asia/Kolkata).
// Столы ведутся в индийской группе, все сроки считаем по IST.
func GetISTTime() time.Time {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Если не удалось загрузить — используем UTC+5:30 вручную
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	return time.Now().In(loc)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" (день.месяц.год часы:минуты).
// Используется для отображения дат транзакций.
func FormatDateTime(t time.Time) string {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.FixedZone("IST", 5*60*60+30*60)
	}
	return t.In(loc).Format("02.01.2006 15:04")
}
