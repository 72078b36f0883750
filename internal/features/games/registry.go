// Package games — registry.go держит активные столы в памяти и прячет за
// одним API кэш и долговременное хранилище: Put пишет и туда и туда,
// WarmUp восстанавливает кэш из базы после рестарта.
package games

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/common"
)

// Store — то, что реестру нужно от долговременного хранилища.
type Store interface {
	Create(ctx context.Context, g *Game) error
	ListActive(ctx context.Context) ([]*Game, error)
}

// Registry — реестр активных столов.
// Поиск идёт по двум ключам: по сообщению-источнику (правка сообщения,
// /cancel по reply) и по game_id (payload кнопки, фоновые задачи).
type Registry struct {
	mu       sync.RWMutex
	byOrigin map[string]*Game
	byGameID map[string]*Game
	store    Store
}

// NewRegistry создаёт пустой реестр поверх хранилища.
func NewRegistry(store Store) *Registry {
	return &Registry{
		byOrigin: make(map[string]*Game),
		byGameID: make(map[string]*Game),
		store:    store,
	}
}

func originKey(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// Put регистрирует новый активный стол: сначала пишет в базу (там же
// уникальный индекс отсекает второй активный стол на то же сообщение),
// затем кладёт в кэш. ErrDuplicateGame — если стол на это сообщение
// уже есть.
func (r *Registry) Put(ctx context.Context, g *Game) error {
	key := originKey(g.ChatID, g.OriginMessageID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byOrigin[key]; ok {
		return common.ErrDuplicateGame
	}
	if err := r.store.Create(ctx, g); err != nil {
		return err
	}
	r.byOrigin[key] = g
	r.byGameID[g.GameID] = g
	return nil
}

// Get возвращает активный стол по сообщению-источнику.
func (r *Registry) Get(chatID int64, messageID int) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byOrigin[originKey(chatID, messageID)]
	return g, ok
}

// GetByGameID возвращает активный стол по его ID.
func (r *Registry) GetByGameID(gameID string) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byGameID[gameID]
	return g, ok
}

// Remove убирает стол из кэша (стол перестал быть активным).
// Смену статуса в базе делает вызывающая сторона в своей транзакции.
func (r *Registry) Remove(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.byGameID[gameID]
	if !ok {
		return
	}
	delete(r.byGameID, gameID)
	delete(r.byOrigin, originKey(g.ChatID, g.OriginMessageID))
}

// ListActive возвращает снимок активных столов.
func (r *Registry) ListActive() []*Game {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Game, 0, len(r.byGameID))
	for _, g := range r.byGameID {
		out = append(out, g)
	}
	return out
}

// WarmUp восстанавливает кэш активных столов из базы.
// Вызывается один раз при старте до запуска цикла обновлений.
func (r *Registry) WarmUp(ctx context.Context) error {
	games, err := r.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("ошибка восстановления активных столов: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range games {
		r.byOrigin[originKey(g.ChatID, g.OriginMessageID)] = g
		r.byGameID[g.GameID] = g
	}

	log.WithField("count", len(games)).Info("Активные столы восстановлены из базы")
	return nil
}
