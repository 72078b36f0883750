// Package ledger — service.go содержит расчётную логику.
// Вычисление дельт отделено от применения: ComputeSettlement и
// ComputeReversal — чистые функции, их результат применяется репозиторием
// одной транзакцией БД.
package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/common"
)

// Service управляет леджером.
type Service struct {
	repo *Repository
}

// NewService создаёт сервис леджера.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Commission возвращает комиссию со ставки: floor(stake × rate).
func Commission(stake int64, rate float64) int64 {
	if stake <= 0 || rate <= 0 {
		return 0
	}
	return int64(math.Floor(float64(stake) * rate))
}

// ComputeSettlement вычисляет дельты расчёта стола.
// Победитель получает ставку соперника за вычетом комиссии
// (собственная ставка победителя не двигается — деньги ходят только
// при расчёте, ставки при создании стола не списываются).
// Проигравший теряет ровно свою ставку, даже если уйдёт в минус.
func ComputeSettlement(gameID string, parts []Participant) []Entry {
	entries := make([]Entry, 0, len(parts))
	for _, p := range parts {
		if p.Winner {
			commission := Commission(p.Stake, p.CommissionRate)
			entries = append(entries, Entry{
				UserID:      p.UserID,
				DisplayHint: p.DisplayHint,
				Type:        TxTypeWin,
				Amount:      p.Stake - commission,
				Description: fmt.Sprintf("Выигрыш по столу %s (комиссия %s)", gameID, common.FormatMoney(commission)),
			})
		} else {
			entries = append(entries, Entry{
				UserID:      p.UserID,
				DisplayHint: p.DisplayHint,
				Type:        TxTypeLoss,
				Amount:      -p.Stake,
				Description: fmt.Sprintf("Проигрыш по столу %s", gameID),
			})
		}
	}
	return entries
}

// ComputeReversal вычисляет дельты разворота уже рассчитанного стола:
// сначала у каждого победителя забирается начисленный выигрыш,
// затем каждому игроку возвращается ставка за вычетом комиссии
// (комиссия считается уже собранной и не возвращается).
func ComputeReversal(gameID string, parts []Participant) []Entry {
	var entries []Entry
	for _, p := range parts {
		if !p.Winner {
			continue
		}
		commission := Commission(p.Stake, p.CommissionRate)
		entries = append(entries, Entry{
			UserID:      p.UserID,
			DisplayHint: p.DisplayHint,
			Type:        TxTypeRefund,
			Amount:      -(p.Stake - commission),
			Description: fmt.Sprintf("Отмена стола %s: снятие выигрыша", gameID),
		})
	}
	for _, p := range parts {
		commission := Commission(p.Stake, p.CommissionRate)
		entries = append(entries, Entry{
			UserID:      p.UserID,
			DisplayHint: p.DisplayHint,
			Type:        TxTypeRefund,
			Amount:      p.Stake - commission,
			Description: fmt.Sprintf("Отмена стола %s: возврат ставки", gameID),
		})
	}
	return entries
}

// dropUnknown отбрасывает дельты игроков без привязанного аккаунта.
// Политика: списывать не с кого и некуда — операция пропускается
// с громким предупреждением, фантомные счета не создаются.
func dropUnknown(gameID string, entries []Entry) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if e.UserID == 0 {
			log.WithFields(log.Fields{
				"game_id": gameID,
				"player":  e.DisplayHint,
				"amount":  e.Amount,
			}).Warn("Игрок без аккаунта — движение по балансу пропущено")
			continue
		}
		out = append(out, e)
	}
	return out
}

// SettleGame рассчитывает стол: вычисляет дельты и атомарно применяет их
// вместе с переводом стола в статус completed. Любая ошибка записи
// откатывает всё целиком — стол остаётся активным и расчёт можно повторить.
func (s *Service) SettleGame(ctx context.Context, gameID string, winners []string, parts []Participant) error {
	entries := dropUnknown(gameID, ComputeSettlement(gameID, parts))
	return s.repo.ApplySettlement(ctx, gameID, winners, entries)
}

// ReverseGame разворачивает расчёт завершённого стола (отмена админом).
func (s *Service) ReverseGame(ctx context.Context, gameID string, parts []Participant) error {
	entries := dropUnknown(gameID, ComputeReversal(gameID, parts))
	return s.repo.ApplyReversal(ctx, gameID, entries)
}

// ManualAdjust — ручная корректировка баланса админом (со знаком).
func (s *Service) ManualAdjust(ctx context.Context, userID, amount int64, description string) error {
	if amount == 0 {
		return common.ErrInvalidAmount
	}
	return s.repo.ApplyManualAdjust(ctx, userID, amount, description)
}

// History возвращает отформатированную историю последних транзакций.
func (s *Service) History(ctx context.Context, userID int64, limit int) (string, error) {
	txs, err := s.repo.GetTransactions(ctx, userID, limit)
	if err != nil {
		return "", err
	}
	if len(txs) == 0 {
		return "📋 У вас пока нет транзакций", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📋 Последние %d транзакций:\n\n", len(txs)))
	for i, tx := range txs {
		sign := "+"
		if tx.Amount < 0 {
			sign = ""
		}
		sb.WriteString(fmt.Sprintf("%d. %s | %s%d | %s\n",
			i+1, common.FormatDateTime(tx.CreatedAt), sign, tx.Amount, tx.Description,
		))
	}
	return sb.String(), nil
}
