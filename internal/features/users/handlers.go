// Package users — handlers.go отвечает за команды, связанные с пользователями:
// баланс, комиссия, балансовая ведомость.
package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/common"
)

// Handler обрабатывает команды пользователей.
type Handler struct {
	service *Service
	api     *tgbotapi.BotAPI

	// ID закреплённого сообщения с ведомостью (пересоздаём после рестарта)
	sheetMu    sync.Mutex
	sheetMsgID int
}

// NewHandler создаёт обработчик команд пользователей.
func NewHandler(service *Service, api *tgbotapi.BotAPI) *Handler {
	return &Handler{service: service, api: api}
}

// HandleBalance показывает баланс и комиссию пользователя.
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	u, err := h.service.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			h.reply(chatID, "Вы ещё не зарегистрированы. Напишите любое сообщение в группе.")
			return
		}
		log.WithError(err).WithField("user_id", userID).Error("HandleBalance failed")
		h.reply(chatID, "❌ Не удалось получить баланс, попробуйте позже")
		return
	}

	h.reply(chatID, fmt.Sprintf(
		"💰 Баланс: %s\n💼 Комиссия: %d%%",
		common.FormatMoney(u.Balance), int(u.CommissionRate*100+0.5),
	))
}

// HandleSetCommission обрабатывает /setcommission @user процент.
func (h *Handler) HandleSetCommission(ctx context.Context, chatID int64, args []string) {
	if len(args) != 2 {
		h.reply(chatID, "Использование: /setcommission @user процент (например /setcommission @raju 10)")
		return
	}

	percent, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		h.reply(chatID, "❌ Процент должен быть числом")
		return
	}

	u, err := h.service.SetCommissionRate(ctx, args[0], percent)
	switch {
	case errors.Is(err, common.ErrInvalidCommission):
		h.reply(chatID, "❌ Комиссия должна быть от 0 до 100")
	case errors.Is(err, common.ErrUserNotFound):
		h.reply(chatID, fmt.Sprintf("❌ Пользователь %s не найден", args[0]))
	case err != nil:
		log.WithError(err).Error("HandleSetCommission failed")
		h.reply(chatID, "❌ Не удалось обновить комиссию")
	default:
		h.reply(chatID, fmt.Sprintf("✅ Комиссия %d%% установлена для %s", int(percent), u.DisplayName()))
	}
}

// HandleBalanceSheet формирует ведомость, отправляет и закрепляет её.
func (h *Handler) HandleBalanceSheet(ctx context.Context, chatID int64) {
	if err := h.RefreshBalanceSheet(ctx, chatID); err != nil {
		log.WithError(err).Error("HandleBalanceSheet failed")
		h.reply(chatID, "❌ Не удалось обновить ведомость")
		return
	}
	h.reply(chatID, "✅ Ведомость обновлена и закреплена")
}

// RefreshBalanceSheet обновляет закреплённую ведомость в чате.
// Если закреплённого сообщения ещё нет (или бот перезапускался) —
// отправляет новое и закрепляет его. Вызывается и по команде, и по крону.
func (h *Handler) RefreshBalanceSheet(ctx context.Context, chatID int64) error {
	text, err := h.service.BalanceSheet(ctx)
	if err != nil {
		return err
	}

	h.sheetMu.Lock()
	defer h.sheetMu.Unlock()

	if h.sheetMsgID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, h.sheetMsgID, text)
		if _, err := h.api.Send(edit); err == nil {
			return nil
		}
		// Не отредактировалось (удалили/устарело) — отправим заново
		h.sheetMsgID = 0
	}

	msg, err := h.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return fmt.Errorf("ошибка отправки ведомости: %w", err)
	}
	h.sheetMsgID = msg.MessageID

	pin := tgbotapi.PinChatMessageConfig{
		ChatID:              chatID,
		MessageID:           msg.MessageID,
		DisableNotification: true,
	}
	if _, err := h.api.Request(pin); err != nil {
		// Не смогли закрепить — не критично, ведомость уже в чате
		log.WithError(err).Warn("Не удалось закрепить ведомость")
	}
	return nil
}

func (h *Handler) reply(chatID int64, text string) {
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
