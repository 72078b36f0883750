// Package games — repository.go хранит столы в Postgres.
// Игроки лежат в JSONB: состав стола фиксируется снимком на момент
// создания и больше не меняется. Смены статуса — условные UPDATE по
// текущему статусу, чтобы два конкурирующих перехода не прошли оба.
package games

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ludo-manager/internal/common"
)

const gameColumns = `id, game_id, chat_id, origin_message_id, admin_user_id, stake,
	players, winners, status, created_at, expires_at, completed_at, cancelled_at`

// Repository хранит столы.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий столов.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create вставляет новый активный стол. Частичный уникальный индекс по
// (chat_id, origin_message_id) WHERE status = 'active' отсекает второй
// активный стол на то же сообщение — тогда возвращается ErrDuplicateGame.
func (r *Repository) Create(ctx context.Context, g *Game) error {
	playersJSON, err := json.Marshal(g.Players)
	if err != nil {
		return fmt.Errorf("ошибка сериализации игроков: %w", err)
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO games (game_id, chat_id, origin_message_id, admin_user_id, stake,
			players, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, g.GameID, g.ChatID, g.OriginMessageID, g.AdminUserID, g.Stake,
		playersJSON, g.Status, g.CreatedAt, g.ExpiresAt,
	).Scan(&g.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrDuplicateGame
		}
		return fmt.Errorf("ошибка создания стола: %w", err)
	}
	return nil
}

// ListActive возвращает все активные столы (для прогрева кэша и свипа).
func (r *Repository) ListActive(ctx context.Context) ([]*Game, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = 'active' ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки активных столов: %w", err)
	}
	defer rows.Close()

	var out []*Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// GetByGameID возвращает стол в любом статусе.
func (r *Repository) GetByGameID(ctx context.Context, gameID string) (*Game, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games WHERE game_id = $1`, gameID,
	)
	g, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrGameNotFound
		}
		return nil, err
	}
	return g, nil
}

// GetByOrigin возвращает последний стол по сообщению-источнику в любом
// статусе. Нужен для /cancel по reply: отменяемый стол может быть уже
// рассчитан и потому отсутствовать в кэше активных.
func (r *Repository) GetByOrigin(ctx context.Context, chatID int64, messageID int) (*Game, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+gameColumns+` FROM games
		 WHERE chat_id = $1 AND origin_message_id = $2
		 ORDER BY created_at DESC LIMIT 1`,
		chatID, messageID,
	)
	g, err := scanGame(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrGameNotFound
		}
		return nil, err
	}
	return g, nil
}

// MarkExpired переводит стол active → expired. Денег не двигает:
// ставки при создании не списывались, возвращать нечего.
func (r *Repository) MarkExpired(ctx context.Context, gameID string) error {
	return r.markStatus(ctx, gameID, StatusActive, StatusExpired)
}

// MarkCancelled переводит стол active → cancelled (отмена до расчёта).
func (r *Repository) MarkCancelled(ctx context.Context, gameID string) error {
	return r.markStatus(ctx, gameID, StatusActive, StatusCancelled)
}

func (r *Repository) markStatus(ctx context.Context, gameID, from, to string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE games SET cancelled_at = CASE WHEN $3 = 'cancelled' THEN NOW() ELSE cancelled_at END,
			status = $3
		WHERE game_id = $1 AND status = $2
	`, gameID, from, to)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса стола: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrGameNotActive
	}
	return nil
}

func scanGame(row pgx.Row) (*Game, error) {
	var (
		g           Game
		playersJSON []byte
		winnersJSON []byte
	)
	err := row.Scan(
		&g.ID, &g.GameID, &g.ChatID, &g.OriginMessageID, &g.AdminUserID, &g.Stake,
		&playersJSON, &winnersJSON, &g.Status, &g.CreatedAt, &g.ExpiresAt,
		&g.CompletedAt, &g.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(playersJSON, &g.Players); err != nil {
		return nil, fmt.Errorf("ошибка разбора игроков стола %s: %w", g.GameID, err)
	}
	if len(winnersJSON) > 0 {
		if err := json.Unmarshal(winnersJSON, &g.Winners); err != nil {
			return nil, fmt.Errorf("ошибка разбора победителей стола %s: %w", g.GameID, err)
		}
	}
	return &g, nil
}

// isUniqueViolation распознаёт нарушение уникального индекса (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
