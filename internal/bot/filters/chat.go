package filters

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/features/users"
)

// ChatFilter решает, обрабатывать ли сообщение:
// рабочая группа — всегда; личка — только для участников группы
// (сначала по базе, затем через Telegram API с дозаписью в базу).
type ChatFilter struct {
	groupChatID int64
	userService *users.Service
	bot         *tgbotapi.BotAPI
}

func NewChatFilter(groupChatID int64, userService *users.Service, bot *tgbotapi.BotAPI) *ChatFilter {
	return &ChatFilter{
		groupChatID: groupChatID,
		userService: userService,
		bot:         bot,
	}
}

func (f *ChatFilter) CheckAccess(ctx context.Context, message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (служебное сообщение?)")
		return false
	}
	if f.groupChatID == 0 {
		log.WithField("component", "ChatFilter").Error("groupChatID is 0 (config bug)")
		return false
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	logger := log.WithFields(log.Fields{
		"component":     "ChatFilter",
		"chat_id":       chatID,
		"chat_type":     message.Chat.Type,
		"user_id":       userID,
		"group_chat_id": f.groupChatID,
	})

	// 1) Рабочая группа
	if chatID == f.groupChatID {
		logger.Debug("allow: group chat")
		return true
	}

	// 2) Личка: сначала быстро по БД
	if message.Chat.IsPrivate() {
		known, err := f.userService.IsRegistered(ctx, userID)
		if err != nil {
			logger.WithError(err).Error("user check failed (db)")
			return false
		}
		if known {
			logger.Debug("allow: private (db user)")
			return true
		}

		// 2.1) БД не знает пользователя: проверяем членство через Telegram API
		cm, err := f.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
				ChatID: f.groupChatID,
				UserID: userID,
			},
		})
		if err != nil {
			logger.WithError(err).Error("member check failed (telegram GetChatMember)")
			return false
		}

		switch cm.Status {
		case "creator", "administrator", "member", "restricted":
			if err := f.userService.EnsureUser(
				ctx, userID,
				message.From.UserName,
				message.From.FirstName,
				message.From.LastName,
			); err != nil {
				logger.WithError(err).Warn("не удалось дозаписать пользователя в БД (пропускаем)")
			}
			logger.WithField("tg_status", cm.Status).Info("allow: private (telegram member, backfilled)")
			return true

		default:
			logger.WithField("tg_status", cm.Status).Info("deny: private (not a chat member)")
			msg := tgbotapi.NewMessage(chatID, "❌ Бот работает только для участников рабочей группы")
			if _, sendErr := f.bot.Send(msg); sendErr != nil {
				logger.WithError(sendErr).Warn("failed to send deny message")
			}
			return false
		}
	}

	// 3) Остальные чаты игнорируем
	logger.Info("deny: not group chat and not private")
	return false
}
