// Package ledger — repository.go применяет вычисленные дельты к базе.
// Все денежные операции выполняются в одной транзакции БД: обновление
// балансов, записи в журнал и смена статуса стола либо происходят вместе,
// либо не происходят вовсе.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/common"
)

// Repository применяет операции леджера к таблицам users, transactions и games.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository создаёт репозиторий леджера.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ApplySettlement атомарно: переводит стол active → completed (с набором
// победителей) и применяет все дельты балансов. Условие по статусу в
// UPDATE — страховка на уровне БД от двойного расчёта: повторный вызов
// не заденет ни одной строки и вернёт ErrAlreadySettled.
func (r *Repository) ApplySettlement(ctx context.Context, gameID string, winners []string, entries []Entry) error {
	winnersJSON, err := json.Marshal(winners)
	if err != nil {
		return fmt.Errorf("ошибка сериализации победителей: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE games
		SET status = 'completed', winners = $2, completed_at = NOW()
		WHERE game_id = $1 AND status = 'active'
	`, gameID, winnersJSON)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса стола: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyStatusMiss(ctx, tx, gameID, "active")
	}

	if err := r.applyEntries(ctx, tx, &gameID, entries); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ApplyReversal атомарно: переводит стол completed → cancelled и применяет
// дельты разворота. Повторная отмена не заденет ни одной строки.
func (r *Repository) ApplyReversal(ctx context.Context, gameID string, entries []Entry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE games
		SET status = 'cancelled', cancelled_at = NOW()
		WHERE game_id = $1 AND status = 'completed'
	`, gameID)
	if err != nil {
		return fmt.Errorf("ошибка смены статуса стола: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyStatusMiss(ctx, tx, gameID, "completed")
	}

	if err := r.applyEntries(ctx, tx, &gameID, entries); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ApplyManualAdjust — ручная корректировка баланса одной транзакцией БД.
func (r *Repository) ApplyManualAdjust(ctx context.Context, userID, amount int64, description string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	entry := Entry{
		UserID:      userID,
		Type:        TxTypeManualAdjust,
		Amount:      amount,
		Description: description,
	}
	if err := r.applyEntry(ctx, tx, nil, entry, false); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// applyEntries применяет дельты расчёта. Игрок без записи в users
// пропускается с предупреждением (политика UnknownPlayer) — ошибкой
// считаются только сбои самой записи.
func (r *Repository) applyEntries(ctx context.Context, tx pgx.Tx, gameID *string, entries []Entry) error {
	for _, e := range entries {
		if err := r.applyEntry(ctx, tx, gameID, e, true); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) applyEntry(ctx context.Context, tx pgx.Tx, gameID *string, e Entry, skipMissing bool) error {
	// Блокируем строку пользователя и читаем баланс до операции
	var before int64
	err := tx.QueryRow(ctx,
		`SELECT balance FROM users WHERE user_id = $1 FOR UPDATE`, e.UserID,
	).Scan(&before)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if skipMissing {
				log.WithFields(log.Fields{
					"user_id": e.UserID,
					"player":  e.DisplayHint,
					"amount":  e.Amount,
				}).Warn("Нет записи пользователя — движение по балансу пропущено")
				return nil
			}
			return common.ErrUserNotFound
		}
		return fmt.Errorf("ошибка чтения баланса (user_id=%d): %w", e.UserID, err)
	}

	after := before + e.Amount

	if _, err := tx.Exec(ctx,
		`UPDATE users SET balance = $2, updated_at = NOW() WHERE user_id = $1`,
		e.UserID, after,
	); err != nil {
		return fmt.Errorf("ошибка обновления баланса (user_id=%d): %w", e.UserID, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO transactions (user_id, type, amount, game_id, description, balance_before, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.UserID, e.Type, e.Amount, gameID, e.Description, before, after); err != nil {
		return fmt.Errorf("ошибка записи транзакции (user_id=%d): %w", e.UserID, err)
	}

	return nil
}

// classifyStatusMiss разбирает, почему UPDATE по статусу не нашёл строку:
// стола нет вовсе, он уже рассчитан или уже отменён.
func (r *Repository) classifyStatusMiss(ctx context.Context, tx pgx.Tx, gameID, wanted string) error {
	var status string
	err := tx.QueryRow(ctx,
		`SELECT status FROM games WHERE game_id = $1`, gameID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.ErrGameNotFound
		}
		return fmt.Errorf("ошибка чтения статуса стола: %w", err)
	}

	switch {
	case wanted == "active" && status == "completed":
		return common.ErrAlreadySettled
	case status == "cancelled":
		return common.ErrAlreadyCancelled
	default:
		return common.ErrGameNotActive
	}
}

// GetTransactions возвращает последние N транзакций пользователя.
func (r *Repository) GetTransactions(ctx context.Context, userID int64, limit int) ([]*Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, game_id, description, balance_before, balance_after, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения транзакций: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Type, &t.Amount, &t.GameID,
			&t.Description, &t.BalanceBefore, &t.BalanceAfter, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования транзакции: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

// SumAmounts возвращает сумму всех транзакций пользователя.
// По инварианту она обязана совпадать с users.balance.
func (r *Repository) SumAmounts(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("ошибка суммирования транзакций: %w", err)
	}
	return sum, nil
}
