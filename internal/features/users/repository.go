// Package users — repository.go отвечает за все операции с таблицей users в БД.
// Каждая функция выполняет один SQL-запрос и возвращает результат или ошибку.
// Баланс здесь только читается: пишет его исключительно леджер.
package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, user_id, username, first_name, last_name, balance, commission_rate, created_at, updated_at`

// Ensure добавляет пользователя или обновляет его имя/username.
// На конфликте по user_id НЕ трогает баланс и комиссию — только профиль.
func (r *Repository) Ensure(ctx context.Context, userID int64, username, firstName, lastName string, defaultCommission float64) error {
	query := `
		INSERT INTO users (user_id, username, first_name, last_name, balance, commission_rate)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    first_name = EXCLUDED.first_name,
		    last_name = EXCLUDED.last_name,
		    updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, userID, username, firstName, lastName, defaultCommission)
	if err != nil {
		return fmt.Errorf("ошибка создания/обновления пользователя: %w", err)
	}
	return nil
}

// GetByUserID: если не найден — ошибка с pgx.ErrNoRows (errors.Is(err, pgx.ErrNoRows) == true)
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, userID), fmt.Sprintf("user_id=%d", userID))
}

// GetByUsername ищет без учёта регистра. Если не найден — ошибка с pgx.ErrNoRows.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	return r.scanOne(r.db.QueryRow(ctx, query, username), fmt.Sprintf("username=%s", username))
}

// GetByFullName ищет по отображаемому имени (имя + фамилия), без учёта регистра.
func (r *Repository) GetByFullName(ctx context.Context, name string) (*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(TRIM(first_name || ' ' || last_name)) = LOWER(TRIM($1))
		   OR LOWER(first_name) = LOWER(TRIM($1))
		ORDER BY id
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, name), fmt.Sprintf("name=%s", name))
}

// UpdateCommissionRate задаёт персональную долю комиссии.
// На открытые столы не влияет: там снимок ставки на момент создания.
func (r *Repository) UpdateCommissionRate(ctx context.Context, userID int64, rate float64) error {
	query := `UPDATE users SET commission_rate = $2, updated_at = NOW() WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID, rate)
	if err != nil {
		return fmt.Errorf("ошибка обновления комиссии: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListWithBalance возвращает всех пользователей с ненулевым балансом,
// отсортированных по убыванию. Нужен для балансовой ведомости.
func (r *Repository) ListWithBalance(ctx context.Context) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE balance <> 0
		ORDER BY balance DESC, first_name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса пользователей: %w", err)
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID, &u.UserID, &u.Username, &u.FirstName, &u.LastName,
			&u.Balance, &u.CommissionRate, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования строки: %w", err)
		}
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения строк: %w", err)
	}
	return out, nil
}

func (r *Repository) scanOne(row pgx.Row, who string) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.UserID, &u.Username, &u.FirstName, &u.LastName,
		&u.Balance, &u.CommissionRate, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("пользователь не найден (%s): %w", who, err)
		}
		return nil, fmt.Errorf("ошибка чтения пользователя (%s): %w", who, err)
	}
	return &u, nil
}
