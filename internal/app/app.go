// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, репозитории, сервисы, обработчики,
// фильтры и собирает всё в один объект Bot.
package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/bot"
	"ludo-manager/internal/bot/filters"
	"ludo-manager/internal/config"
	"ludo-manager/internal/db/postgres"
	"ludo-manager/internal/features/games"
	"ludo-manager/internal/features/ledger"
	"ludo-manager/internal/features/users"
	"ludo-manager/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	DB        *pgxpool.Pool
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Запускаем миграции
	if err := runMigrations(ctx, pool); err != nil {
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Репозитории ===
	userRepo := users.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	gameRepo := games.NewRepository(pool)

	// === 4. Сервисы ===
	userService := users.NewService(userRepo, cfg)
	ledgerService := ledger.NewService(ledgerRepo)

	registry := games.NewRegistry(gameRepo)
	extractor := games.NewExtractor(userService, cfg.GameMaxStake, cfg.DefaultCommissionRate)

	// notify подключаем после сборки бота (циклическая зависимость)
	var b *bot.Bot
	notify := func(chatID int64, text string) {
		if b != nil {
			b.SendMessageToChat(chatID, text)
		}
	}
	gameService := games.NewService(registry, extractor, gameRepo, ledgerService, notify, cfg.GameTTL)

	// Восстанавливаем активные столы после рестарта
	if err := gameService.WarmUp(ctx); err != nil {
		return nil, fmt.Errorf("ошибка восстановления столов: %w", err)
	}

	// === 5. Обработчики ===
	usersHandler := users.NewHandler(userService, botAPI)
	ledgerHandler := ledger.NewHandler(ledgerService, userService, botAPI)
	gamesHandler := games.NewHandler(gameService, botAPI, cfg.IsAdmin)

	// === 6. Фильтры ===
	chatFilter := filters.NewChatFilter(cfg.GroupChatID, userService, botAPI)

	// === 7. Собираем бота ===
	b = bot.New(
		botAPI, cfg,
		userService, usersHandler,
		ledgerHandler, gamesHandler,
		chatFilter,
	)

	// === 8. Планировщик задач ===
	scheduler := jobs.NewScheduler(
		cfg.AppTimezone,
		func(ctx context.Context) { gameService.ExpireStale(ctx) },
		func(ctx context.Context) error {
			return usersHandler.RefreshBalanceSheet(ctx, cfg.GroupChatID)
		},
		cfg.FeatureBalanceSheetEnabled,
	)

	return &App{
		Bot:       b,
		Scheduler: scheduler,
		DB:        pool,
		BotAPI:    botAPI,
	}, nil
}

// runMigrations выполняет все SQL-миграции.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	// Инициализируем систему миграций
	if err := postgres.InitMigrations(ctx, pool); err != nil {
		return err
	}

	// Выполняем миграции по порядку
	migrations := []struct {
		version int
		sql     string
	}{
		{1, migration001Users},
		{2, migration002Games},
		{3, migration003Transactions},
	}

	for _, m := range migrations {
		if err := postgres.ExecMigrationSQL(ctx, pool, m.version, m.sql); err != nil {
			return fmt.Errorf("миграция %d: %w", m.version, err)
		}
		log.Infof("Миграция %d применена", m.version)
	}

	return nil
}

// SQL-миграции встроены в код для упрощения деплоя.

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255),
    first_name VARCHAR(255) NOT NULL,
    last_name VARCHAR(255),
    balance BIGINT NOT NULL DEFAULT 0,
    commission_rate DOUBLE PRECISION NOT NULL DEFAULT 0.05,
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_user_id ON users(user_id);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(LOWER(username));
`

var migration002Games = `
CREATE TABLE IF NOT EXISTS games (
    id BIGSERIAL PRIMARY KEY,
    game_id VARCHAR(64) UNIQUE NOT NULL,
    chat_id BIGINT NOT NULL,
    origin_message_id INTEGER NOT NULL,
    admin_user_id BIGINT NOT NULL,
    stake BIGINT NOT NULL,
    players JSONB NOT NULL,
    winners JSONB,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    cancelled_at TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_games_active_origin
    ON games(chat_id, origin_message_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_games_status ON games(status);
CREATE INDEX IF NOT EXISTS idx_games_expires_at ON games(expires_at) WHERE status = 'active';
`

var migration003Transactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(user_id),
    type VARCHAR(32) NOT NULL,
    amount BIGINT NOT NULL,
    game_id VARCHAR(64),
    description TEXT,
    balance_before BIGINT NOT NULL,
    balance_after BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_game_id ON transactions(game_id);
`
