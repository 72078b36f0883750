// Package users управляет участниками: регистрацией, балансом, комиссией.
// models.go описывает структуру записи в таблице users.
package users

import (
	"strings"
	"time"
)

// User представляет пользователя в базе данных.
// Создаётся при первом взаимодействии с ботом и никогда не удаляется.
// Баланс хранится денормализованно для O(1) чтения; меняет его только леджер,
// в одной транзакции БД с записью в transactions.
type User struct {
	ID             int64     `db:"id"`              // Автоинкрементный ID записи в БД
	UserID         int64     `db:"user_id"`         // Telegram user ID (уникальный)
	Username       string    `db:"username"`        // @username (может быть пустым)
	FirstName      string    `db:"first_name"`      // Имя пользователя
	LastName       string    `db:"last_name"`       // Фамилия (может быть пустой)
	Balance        int64     `db:"balance"`         // Текущий баланс в рупиях (может уходить в минус = долг)
	CommissionRate float64   `db:"commission_rate"` // Доля комиссии (0.05 = 5%)
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// DisplayName возвращает отображаемое имя пользователя.
// Если есть @username — возвращает его, иначе — имя + фамилию.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FullName()
}

// FullName возвращает имя + фамилию без @username.
func (u *User) FullName() string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return strings.TrimSpace(name)
}
