// Package ledger управляет денежными расчётами: комиссия, выигрыши,
// проигрыши, возвраты и журнал транзакций.
// models.go описывает структуры для таблицы transactions.
package ledger

import "time"

// Transaction представляет одну операцию леджера.
// Журнал append-only: записи никогда не изменяются и не удаляются.
// Баланс пользователя — материализованное представление суммы его транзакций,
// но хранится и денормализованно в users.balance; оба значения пишутся
// в одной транзакции БД и обязаны совпадать.
type Transaction struct {
	ID            int64     `db:"id"`             // ID транзакции
	UserID        int64     `db:"user_id"`        // Telegram user ID
	Type          string    `db:"type"`           // win / loss / refund / manual_adjust
	Amount        int64     `db:"amount"`         // Сумма со знаком (+ начисление, - списание)
	GameID        *string   `db:"game_id"`        // Стол (nil для ручных операций)
	Description   string    `db:"description"`    // Описание для истории
	BalanceBefore int64     `db:"balance_before"` // Баланс до операции
	BalanceAfter  int64     `db:"balance_after"`  // Баланс после операции (= before + amount)
	CreatedAt     time.Time `db:"created_at"`
}

// Допустимые типы транзакций
const (
	TxTypeWin          = "win"           // Выигрыш по столу
	TxTypeLoss         = "loss"          // Проигрыш по столу
	TxTypeRefund       = "refund"        // Возврат/разворот расчёта
	TxTypeManualAdjust = "manual_adjust" // Ручная корректировка админом
)

// Participant — участник стола с точки зрения леджера.
// Сервис столов приводит своих игроков к этому виду, чтобы леджер
// не зависел от пакета games.
type Participant struct {
	UserID         int64   // 0 — игрок так и не привязался к аккаунту
	DisplayHint    string  // Как игрок записан в столе (для предупреждений)
	Stake          int64   // Ставка игрока
	CommissionRate float64 // Снимок комиссии на момент создания стола
	Winner         bool    // Входит ли в набор победителей
}

// Entry — одно вычисленное изменение баланса.
// Чистый результат ComputeSettlement/ComputeReversal, применяется атомарно.
type Entry struct {
	UserID      int64
	DisplayHint string
	Type        string
	Amount      int64 // со знаком
	Description string
}
