// Package games — handlers.go переводит события Telegram в операции
// сервиса столов и отвечает пользователям.
package games

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/common"
	"ludo-manager/internal/features/ledger"
)

// Handler обрабатывает сообщения и колбэки, относящиеся к столам.
type Handler struct {
	service *Service
	api     *tgbotapi.BotAPI
	isAdmin func(userID int64) bool
}

// NewHandler создаёт обработчик столов.
func NewHandler(service *Service, api *tgbotapi.BotAPI, isAdmin func(userID int64) bool) *Handler {
	return &Handler{service: service, api: api, isAdmin: isAdmin}
}

// HandleTableMessage пробует извлечь стол из сообщения админа.
// Кривой стол молча игнорируется (админы и просто переписываются),
// но явные ошибки — ставка вне диапазона, дубль — получают ответ.
func (h *Handler) HandleTableMessage(ctx context.Context, msg *tgbotapi.Message, mentions []Mention) {
	g, err := h.service.CreateFromMessage(ctx, msg.Chat.ID, msg.MessageID, msg.From.ID, msg.Text, mentions)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrMalformedTable):
			log.WithField("message_id", msg.MessageID).Debug("Сообщение похоже на стол, но не разобралось")
		case errors.Is(err, common.ErrStakeOutOfRange):
			h.reply(msg.Chat.ID, msg.MessageID, "❌ Ставка вне допустимого диапазона")
		case errors.Is(err, common.ErrDuplicateGame):
			h.reply(msg.Chat.ID, msg.MessageID, "❌ На это сообщение уже зарегистрирован активный стол")
		default:
			log.WithError(err).Error("HandleTableMessage failed")
			h.reply(msg.Chat.ID, msg.MessageID, "❌ Не удалось зарегистрировать стол")
		}
		return
	}

	confirm := tgbotapi.NewMessage(msg.Chat.ID, gameSummary(g))
	confirm.ReplyToMessageID = msg.MessageID
	confirm.ReplyMarkup = winnerKeyboard(g)
	if _, err := h.api.Send(confirm); err != nil {
		log.WithError(err).WithField("game_id", g.GameID).Error("Ошибка отправки подтверждения стола")
	}
}

// HandleEditedMessage обрабатывает правку сообщения. Правки без глифа
// победы не интересны; остальное уходит в определение победителя.
func (h *Handler) HandleEditedMessage(ctx context.Context, msg *tgbotapi.Message, mentions []Mention) {
	if !HasWinnerMark(msg.Text) {
		return
	}

	g, winners, err := h.service.DeclareWinnersFromEdit(ctx, msg.Chat.ID, msg.MessageID, msg.Text, mentions)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrGameNotFound):
			// Правка не относится ни к одному активному столу
			log.WithField("message_id", msg.MessageID).Debug("Правка с ✅ без подходящего стола")
		case errors.Is(err, common.ErrAlreadySettled):
			h.reply(msg.Chat.ID, msg.MessageID, "⚠️ Этот стол уже рассчитан")
		case errors.Is(err, common.ErrAlreadyCancelled):
			h.reply(msg.Chat.ID, msg.MessageID, "⚠️ Этот стол был отменён")
		case errors.Is(err, common.ErrGameNotActive):
			h.reply(msg.Chat.ID, msg.MessageID, "⚠️ Этот стол уже закрыт")
		case errors.Is(err, common.ErrWinnerNotFound):
			h.reply(msg.Chat.ID, msg.MessageID,
				"❌ Не удалось сопоставить отмеченного победителя с игроками стола. Проверьте написание или используйте кнопки под подтверждением стола.")
		default:
			log.WithError(err).Error("HandleEditedMessage failed")
			h.reply(msg.Chat.ID, msg.MessageID, "❌ Не удалось рассчитать стол, попробуйте ещё раз")
		}
		return
	}

	h.reply(msg.Chat.ID, msg.MessageID, settlementSummary(g, winners))
}

// HandleWinnerCallback обрабатывает нажатие кнопки победителя.
// Кнопки видны всем, но срабатывают только у админов.
func (h *Handler) HandleWinnerCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	answer := func(text string) {
		if _, err := h.api.Request(tgbotapi.NewCallback(cb.ID, text)); err != nil {
			log.WithError(err).Error("Ошибка ответа на callback")
		}
	}

	if !h.isAdmin(cb.From.ID) {
		answer("Только администратор может объявить победителя")
		return
	}

	g, winner, err := h.service.DeclareWinnerFromCallback(ctx, cb.Data)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrGameNotFound):
			answer("Стол не найден или уже закрыт")
		case errors.Is(err, common.ErrAlreadySettled):
			answer("Стол уже рассчитан")
		case errors.Is(err, common.ErrAlreadyCancelled):
			answer("Стол был отменён")
		case errors.Is(err, common.ErrGameNotActive):
			answer("Стол уже закрыт")
		case errors.Is(err, common.ErrWinnerNotFound):
			answer("Игрок не найден в столе")
		default:
			log.WithError(err).Error("HandleWinnerCallback failed")
			answer("Не удалось рассчитать стол")
		}
		return
	}
	answer("Победитель: " + winner.DisplayHint)

	// Убираем кнопки и показываем итог на месте подтверждения
	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID,
			settlementSummary(g, []*Player{winner}))
		if _, err := h.api.Send(edit); err != nil {
			log.WithError(err).WithField("game_id", g.GameID).Error("Ошибка правки подтверждения стола")
		}
	}
}

// HandleCancel обрабатывает /cancel. Команда должна быть ответом на
// сообщение-стол.
func (h *Handler) HandleCancel(ctx context.Context, msg *tgbotapi.Message) {
	if msg.ReplyToMessage == nil {
		h.reply(msg.Chat.ID, msg.MessageID, "Использование: ответьте командой /cancel на сообщение со столом")
		return
	}

	g, err := h.service.Cancel(ctx, msg.Chat.ID, msg.ReplyToMessage.MessageID)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrGameNotFound):
			h.reply(msg.Chat.ID, msg.MessageID, "❌ По этому сообщению стол не найден")
		case errors.Is(err, common.ErrAlreadyCancelled):
			h.reply(msg.Chat.ID, msg.MessageID, "⚠️ Этот стол уже отменён")
		case errors.Is(err, common.ErrGameNotActive):
			h.reply(msg.Chat.ID, msg.MessageID, "❌ Этот стол нельзя отменить")
		default:
			log.WithError(err).Error("HandleCancel failed")
			h.reply(msg.Chat.ID, msg.MessageID, "❌ Не удалось отменить стол")
		}
		return
	}

	if g.CompletedAt != nil {
		h.reply(msg.Chat.ID, msg.MessageID, fmt.Sprintf(
			"↩️ Стол %s отменён, расчёт развёрнут: выигрыши сняты, каждому игроку возвращена ставка за вычетом комиссии.",
			g.GameID))
		return
	}
	h.reply(msg.Chat.ID, msg.MessageID, fmt.Sprintf(
		"🚫 Стол %s отменён. Балансы не изменены.", g.GameID))
}

// HandleListGames показывает активные столы (/games).
func (h *Handler) HandleListGames(ctx context.Context, chatID int64) {
	actives := h.service.ListActive()
	if len(actives) == 0 {
		h.send(chatID, "🎲 Активных столов нет")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎲 Активных столов: %d\n\n", len(actives)))
	for i, g := range actives {
		sb.WriteString(fmt.Sprintf("%d. %s на %s — %s (до %s)\n",
			i+1, g.GameID, common.FormatMoney(g.Stake), playerList(g),
			common.FormatDateTime(g.ExpiresAt)))
	}
	h.send(chatID, sb.String())
}

// HandleExpire запускает свип истёкших столов вручную (/expiregames).
func (h *Handler) HandleExpire(ctx context.Context, chatID int64) {
	expired := h.service.ExpireStale(ctx)
	if len(expired) == 0 {
		h.send(chatID, "Истёкших столов нет")
		return
	}
	h.send(chatID, fmt.Sprintf("⏰ Закрыто столов по TTL: %d", len(expired)))
}

// gameSummary — текст подтверждения зарегистрированного стола.
func gameSummary(g *Game) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎲 Стол зарегистрирован: ставка %s, банк %s\n",
		common.FormatMoney(g.Stake), common.FormatMoney(g.TotalPot())))
	sb.WriteString(fmt.Sprintf("Игроки (%s):\n", common.PluralizePlayers(len(g.Players))))
	for i := range g.Players {
		p := &g.Players[i]
		mark := ""
		if p.UserID == 0 {
			mark = " ⚠️ (аккаунт не привязан)"
		}
		sb.WriteString(fmt.Sprintf("• %s%s\n", p.DisplayHint, mark))
	}
	sb.WriteString(fmt.Sprintf("\nПобедителя отметьте ✅ в исходном сообщении или кнопкой ниже. Стол истечёт %s.",
		common.FormatDateTime(g.ExpiresAt)))
	return sb.String()
}

// settlementSummary — текст итога расчёта с суммами по игрокам.
func settlementSummary(g *Game, winners []*Player) string {
	isWinner := map[*Player]bool{}
	for _, w := range winners {
		isWinner[w] = true
	}

	var sb strings.Builder
	names := make([]string, 0, len(winners))
	for _, w := range winners {
		names = append(names, w.DisplayHint)
	}
	sb.WriteString(fmt.Sprintf("🏆 Стол рассчитан! Победитель: %s\n\n", strings.Join(names, ", ")))
	for i := range g.Players {
		p := &g.Players[i]
		if isWinner[p] {
			commission := ledger.Commission(p.Stake, p.CommissionRate)
			sb.WriteString(fmt.Sprintf("• %s: +%s (комиссия %s)\n",
				p.DisplayHint, common.FormatMoney(p.Stake-commission), common.FormatMoney(commission)))
		} else {
			sb.WriteString(fmt.Sprintf("• %s: -%s\n", p.DisplayHint, common.FormatMoney(p.Stake)))
		}
	}
	return sb.String()
}

// winnerKeyboard — инлайн-кнопки выбора победителя, по одной на игрока.
func winnerKeyboard(g *Game) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(g.Players))
	for i := range g.Players {
		p := &g.Players[i]
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏆 "+p.DisplayHint, WinnerCallbackData(g.GameID, p)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) reply(chatID int64, replyTo int, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ReplyToMessageID = replyTo
	if _, err := h.api.Send(m); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

func (h *Handler) send(chatID int64, text string) {
	if _, err := h.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
