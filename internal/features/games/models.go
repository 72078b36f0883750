// Package games управляет столами: извлечение из сообщений, реестр открытых
// столов, определение победителя и жизненный цикл (расчёт, отмена, истечение).
// models.go описывает структуры стола и игрока.
package games

import (
	"fmt"
	"strings"
	"time"
)

// Статусы стола. Переходы только в одну сторону:
// active → completed | expired | cancelled, completed → cancelled (разворот).
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// Player — игрок внутри стола.
// Identity может быть не привязана (UserID == 0), если упомянутый аккаунт
// ни разу не взаимодействовал с ботом; тогда остаётся только DisplayHint.
type Player struct {
	UserID         int64   `json:"user_id"`         // Telegram ID или 0
	Username       string  `json:"username"`        // @username без @ (может быть пустым)
	Name           string  `json:"name"`            // Отображаемое имя
	DisplayHint    string  `json:"display_hint"`    // Как игрок записан в столе (для повторного сопоставления)
	Stake          int64   `json:"stake"`           // Ставка игрока
	CommissionRate float64 `json:"commission_rate"` // Снимок комиссии на момент создания стола
}

// Game представляет один стол.
type Game struct {
	ID              int64      `db:"id"`
	GameID          string     `db:"game_id"` // Уникальный, без подчёркиваний (см. NewGameID)
	ChatID          int64      `db:"chat_id"`
	OriginMessageID int        `db:"origin_message_id"` // Сообщение-стол; его правка = объявление победителя
	AdminUserID     int64      `db:"admin_user_id"`
	Stake           int64      `db:"stake"`   // Ставка на игрока
	Players         []Player   `db:"players"` // ≥2, без дублей по identity
	Winners         []string   `db:"winners"` // DisplayHint победителей (заполняется при completed)
	Status          string     `db:"status"`
	CreatedAt       time.Time  `db:"created_at"`
	ExpiresAt       time.Time  `db:"expires_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	CancelledAt     *time.Time `db:"cancelled_at"`
}

// NewGameID строит ID стола из времени создания и сообщения-источника.
// Без подчёркиваний: payload кнопки "winner_<gameID>_<hint>" режется по
// первым двум "_", и подчёркивания внутри ID ломали бы разбор.
func NewGameID(createdAt time.Time, originMessageID int) string {
	return fmt.Sprintf("g%d-%d", createdAt.Unix(), originMessageID)
}

// TotalPot возвращает общий банк стола.
func (g *Game) TotalPot() int64 {
	return g.Stake * int64(len(g.Players))
}

// PlayerByUserID ищет игрока по привязанному Telegram ID.
func (g *Game) PlayerByUserID(userID int64) *Player {
	if userID == 0 {
		return nil
	}
	for i := range g.Players {
		if g.Players[i].UserID == userID {
			return &g.Players[i]
		}
	}
	return nil
}

// PlayerByHandle ищет игрока по @username без учёта регистра.
func (g *Game) PlayerByHandle(handle string) *Player {
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return nil
	}
	for i := range g.Players {
		if g.Players[i].Username != "" && strings.EqualFold(g.Players[i].Username, handle) {
			return &g.Players[i]
		}
	}
	return nil
}

// PlayerByHint ищет игрока по точному совпадению DisplayHint (без регистра).
func (g *Game) PlayerByHint(hint string) *Player {
	for i := range g.Players {
		if strings.EqualFold(g.Players[i].DisplayHint, hint) {
			return &g.Players[i]
		}
	}
	return nil
}

// Mention — структурированное упоминание из транспортного слоя.
// Offset/Length в БАЙТАХ текста (транспорт уже сконвертировал из UTF-16).
// UserID != 0 — платформа сама привязала упоминание к аккаунту.
type Mention struct {
	Offset int
	Length int
	UserID int64
	Handle string // без @, может быть пустым для text_mention
}

// overlaps сообщает, пересекается ли упоминание с байтовым диапазоном [start, end).
func (m Mention) overlaps(start, end int) bool {
	return m.Offset < end && m.Offset+m.Length > start
}

// ExtractedTable — результат разбора сообщения-стола.
type ExtractedTable struct {
	Players []Player
	Stake   int64
}
