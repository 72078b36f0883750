// Package users — service.go содержит бизнес-логику работы с пользователями:
// регистрация при первом контакте, поиск по упоминаниям, комиссия, ведомость.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/common"
	"ludo-manager/internal/config"
)

// Service управляет пользователями.
type Service struct {
	repo *Repository
	cfg  *config.Config
}

// NewService создаёт сервис пользователей.
func NewService(repo *Repository, cfg *config.Config) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// EnsureUser регистрирует пользователя при первом взаимодействии
// (или обновляет профиль, если имя/username поменялись).
func (s *Service) EnsureUser(ctx context.Context, userID int64, username, firstName, lastName string) error {
	return s.repo.Ensure(ctx, userID, username, firstName, lastName, s.cfg.DefaultCommissionRate)
}

// GetByUserID возвращает пользователя по Telegram ID.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// IsRegistered сообщает, знаком ли пользователь боту (писал ли хоть раз).
func (s *Service) IsRegistered(ctx context.Context, userID int64) (bool, error) {
	_, err := s.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResolveHint ищет пользователя по текстовой подсказке из стола:
// сначала по @username, затем по отображаемому имени. Регистр не важен.
// Подсказка может приходить с @ или без.
func (s *Service) ResolveHint(ctx context.Context, hint string) (*User, error) {
	hint = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(hint), "@"))
	if hint == "" {
		return nil, common.ErrUserNotFound
	}

	u, err := s.repo.GetByUsername(ctx, hint)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	u, err = s.repo.GetByFullName(ctx, hint)
	if err == nil {
		return u, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	return nil, err
}

// SetCommissionRate задаёт персональную комиссию в процентах (0..100).
// Хранится как доля; на уже открытые столы не влияет.
func (s *Service) SetCommissionRate(ctx context.Context, handle string, percent float64) (*User, error) {
	if percent < 0 || percent > 100 {
		return nil, common.ErrInvalidCommission
	}

	u, err := s.ResolveHint(ctx, handle)
	if err != nil {
		return nil, err
	}

	rate := percent / 100
	if err := s.repo.UpdateCommissionRate(ctx, u.UserID, rate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	u.CommissionRate = rate

	log.WithFields(log.Fields{
		"user_id": u.UserID,
		"rate":    rate,
	}).Info("Комиссия обновлена")

	return u, nil
}

// BalanceSheet формирует текст балансовой ведомости:
// все пользователи с ненулевым балансом, долги отдельной секцией.
func (s *Service) BalanceSheet(ctx context.Context) (string, error) {
	list, err := s.repo.ListWithBalance(ctx)
	if err != nil {
		return "", err
	}

	if len(list) == 0 {
		return "📊 Балансовая ведомость\n\nПока ни у кого нет баланса.", nil
	}

	var sb strings.Builder
	sb.WriteString("📊 Балансовая ведомость\n")
	sb.WriteString(fmt.Sprintf("Обновлено: %s\n\n", common.FormatDateTime(common.GetISTTime())))

	var debtors []*User
	for _, u := range list {
		if u.Balance < 0 {
			debtors = append(debtors, u)
			continue
		}
		sb.WriteString(fmt.Sprintf("%s — %s\n", u.DisplayName(), common.FormatMoney(u.Balance)))
	}

	if len(debtors) > 0 {
		sb.WriteString("\n❗ Должники:\n")
		for _, u := range debtors {
			sb.WriteString(fmt.Sprintf("%s — %s\n", u.DisplayName(), common.FormatMoney(u.Balance)))
		}
	}

	return sb.String(), nil
}
