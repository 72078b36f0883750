// Package bot содержит главный модуль бота — инициализацию, запуск и остановку.
// bot.go подключает обработчики и запускает polling; правки сообщений и
// нажатия кнопок обрабатываются наравне с обычными сообщениями, потому что
// объявление победителя приходит именно правкой.
package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/bot/filters"
	"ludo-manager/internal/bot/middleware"
	"ludo-manager/internal/config"
	"ludo-manager/internal/features/games"
	"ludo-manager/internal/features/ledger"
	"ludo-manager/internal/features/users"
)

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	userService   *users.Service
	usersHandler  *users.Handler
	ledgerHandler *ledger.Handler
	gamesHandler  *games.Handler

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	userService *users.Service,
	usersHandler *users.Handler,
	ledgerHandler *ledger.Handler,
	gamesHandler *games.Handler,
	chatFilter *filters.ChatFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:           api,
		cfg:           cfg,
		chatFilter:    chatFilter,
		rateLimiter:   middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		userService:   userService,
		usersHandler:  usersHandler,
		ledgerHandler: ledgerHandler,
		gamesHandler:  gamesHandler,
		parser:        NewCommandParser(),
		inflight:      make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			b.rateLimiter.Close()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	// Нажатие кнопки выбора победителя
	if update.CallbackQuery != nil {
		b.gamesHandler.HandleWinnerCallback(ctx, update.CallbackQuery)
		return
	}

	// Правка сообщения: так объявляется победитель
	if update.EditedMessage != nil {
		b.handleEditedMessage(ctx, update.EditedMessage)
		return
	}

	if update.Message == nil || update.Message.Text == "" {
		return
	}

	message := update.Message

	middleware.LogMessage(message, false)

	// Проверяем доступ (рабочая группа или DM участника)
	if !b.chatFilter.CheckAccess(ctx, message) {
		return
	}

	// Rate limiting
	if message.From != nil && !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	userID := message.From.ID

	// EnsureUser — без записи в users игрока не к чему привязать при расчёте
	if err := b.userService.EnsureUser(ctx, userID,
		message.From.UserName, message.From.FirstName, message.From.LastName,
	); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureUser failed")
	}

	// Парсим команду
	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if isCommand {
		b.routeCommand(ctx, message, cmd, args)
		return
	}

	// Не команда: сообщение админа в группе с ключевым словом ставки —
	// кандидат в стол
	if message.Chat.ID == b.cfg.GroupChatID && b.cfg.IsAdmin(userID) && games.HasStakeKeyword(message.Text) {
		mentions := MentionsFromEntities(message.Text, message.Entities)
		b.gamesHandler.HandleTableMessage(ctx, message, mentions)
	}
}

// handleEditedMessage обрабатывает правку сообщения в группе.
// Интересны только правки админов с глифом победы.
func (b *Bot) handleEditedMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Text == "" {
		return
	}
	if message.Chat == nil || message.Chat.ID != b.cfg.GroupChatID {
		return
	}
	if !b.cfg.IsAdmin(message.From.ID) {
		return
	}

	middleware.LogMessage(message, true)

	mentions := MentionsFromEntities(message.Text, message.Entities)
	b.gamesHandler.HandleEditedMessage(ctx, message, mentions)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, message *tgbotapi.Message, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	chatID := message.Chat.ID
	userID := message.From.ID

	switch cmd {
	case "start", "help":
		b.sendMessage(chatID, helpText(b.cfg.IsAdmin(userID)))

	case "balance":
		b.usersHandler.HandleBalance(ctx, chatID, userID)

	case "transactions":
		b.ledgerHandler.HandleTransactions(ctx, chatID, userID)

	case "games":
		b.gamesHandler.HandleListGames(ctx, chatID)

	case "cancel":
		if b.requireAdmin(chatID, userID) {
			b.gamesHandler.HandleCancel(ctx, message)
		}

	case "expiregames":
		if b.requireAdmin(chatID, userID) {
			b.gamesHandler.HandleExpire(ctx, chatID)
		}

	case "addbalance":
		if b.requireAdmin(chatID, userID) {
			b.ledgerHandler.HandleAddBalance(ctx, chatID, args)
		}

	case "deduct":
		if b.requireAdmin(chatID, userID) {
			b.ledgerHandler.HandleDeduct(ctx, chatID, args)
		}

	case "setcommission":
		if b.requireAdmin(chatID, userID) {
			b.usersHandler.HandleSetCommission(ctx, chatID, args)
		}

	case "balancesheet":
		if b.requireAdmin(chatID, userID) && b.cfg.FeatureBalanceSheetEnabled {
			// Ведомость живёт закреплённой в рабочей группе
			b.usersHandler.HandleBalanceSheet(ctx, b.cfg.GroupChatID)
		}
	}
}

// requireAdmin проверяет права и отвечает отказом не-админу.
func (b *Bot) requireAdmin(chatID, userID int64) bool {
	if b.cfg.IsAdmin(userID) {
		return true
	}
	b.sendMessage(chatID, "❌ Команда доступна только администратору")
	return false
}

func helpText(isAdmin bool) string {
	text := "🎲 Бот учёта столов и балансов.\n\n" +
		"/balance — ваш баланс\n" +
		"/transactions — последние транзакции\n" +
		"/games — активные столы\n"
	if isAdmin {
		text += "\nАдминистратору:\n" +
			"стол создаётся сообщением с игроками и строкой «N Full»;\n" +
			"победитель — правкой с ✅ или кнопкой под подтверждением\n" +
			"/cancel (ответом на стол) — отменить стол\n" +
			"/expiregames — закрыть истёкшие столы\n" +
			"/addbalance @user сумма — пополнить\n" +
			"/deduct @user сумма — списать\n" +
			"/setcommission @user процент — комиссия игрока\n" +
			"/balancesheet — балансовая ведомость\n"
	}
	return text
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// SendMessageToChat отправляет сообщение в чат (для фоновых задач).
func (b *Bot) SendMessageToChat(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Debug("Не удалось отправить сообщение")
	}
}
