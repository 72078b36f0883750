// Package ledger — handlers.go отвечает за команды леджера:
// история транзакций и ручные корректировки админом.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/common"
	"ludo-manager/internal/features/users"
)

// Handler обрабатывает команды леджера.
type Handler struct {
	service     *Service
	userService *users.Service
	api         *tgbotapi.BotAPI
}

// NewHandler создаёт обработчик команд леджера.
func NewHandler(service *Service, userService *users.Service, api *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, userService: userService, api: api}
}

// HandleTransactions показывает последние 10 транзакций пользователя.
func (h *Handler) HandleTransactions(ctx context.Context, chatID, userID int64) {
	text, err := h.service.History(ctx, userID, 10)
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Error("HandleTransactions failed")
		h.reply(chatID, "❌ Не удалось получить историю, попробуйте позже")
		return
	}
	h.reply(chatID, text)
}

// HandleAddBalance обрабатывает /addbalance @user сумма.
func (h *Handler) HandleAddBalance(ctx context.Context, chatID int64, args []string) {
	h.handleAdjust(ctx, chatID, args, +1,
		"Использование: /addbalance @user сумма",
		"Пополнение от администратора")
}

// HandleDeduct обрабатывает /deduct @user сумма.
func (h *Handler) HandleDeduct(ctx context.Context, chatID int64, args []string) {
	h.handleAdjust(ctx, chatID, args, -1,
		"Использование: /deduct @user сумма",
		"Списание администратором")
}

func (h *Handler) handleAdjust(ctx context.Context, chatID int64, args []string, sign int64, usage, description string) {
	if len(args) != 2 {
		h.reply(chatID, usage)
		return
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		h.reply(chatID, "❌ Сумма должна быть положительным числом")
		return
	}

	u, err := h.userService.ResolveHint(ctx, args[0])
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			h.reply(chatID, fmt.Sprintf("❌ Пользователь %s не найден", args[0]))
			return
		}
		log.WithError(err).Error("handleAdjust: resolve failed")
		h.reply(chatID, "❌ Не удалось найти пользователя")
		return
	}

	if err := h.service.ManualAdjust(ctx, u.UserID, sign*amount, description); err != nil {
		log.WithError(err).WithField("user_id", u.UserID).Error("handleAdjust: adjust failed")
		h.reply(chatID, "❌ Не удалось изменить баланс")
		return
	}

	h.reply(chatID, fmt.Sprintf("✅ %s: %s для %s",
		description, common.FormatMoney(sign*amount), u.DisplayName()))
}

func (h *Handler) reply(chatID int64, text string) {
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
