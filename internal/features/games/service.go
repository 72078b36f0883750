// Package games — service.go связывает извлечение, реестр, определение
// победителя и расчёт в жизненный цикл стола.
// Расчёт защищён дважды: мьютекс на стол в процессе и условный UPDATE по
// статусу в базе — повторное объявление победителя остаётся без эффекта.
package games

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ludo-manager/internal/common"
	"ludo-manager/internal/features/ledger"
)

// settler — то, что сервису столов нужно от леджера.
type settler interface {
	SettleGame(ctx context.Context, gameID string, winners []string, parts []ledger.Participant) error
	ReverseGame(ctx context.Context, gameID string, parts []ledger.Participant) error
}

// gameStore расширяет Store операциями жизненного цикла.
type gameStore interface {
	Store
	GetByOrigin(ctx context.Context, chatID int64, messageID int) (*Game, error)
	GetByGameID(ctx context.Context, gameID string) (*Game, error)
	MarkExpired(ctx context.Context, gameID string) error
	MarkCancelled(ctx context.Context, gameID string) error
}

// NotifyFunc отправляет сообщение в чат. Инжектится транспортом,
// чтобы фоновые задачи могли уведомлять без зависимости от API бота.
type NotifyFunc func(chatID int64, text string)

// Service управляет жизненным циклом столов.
type Service struct {
	registry  *Registry
	extractor *Extractor
	store     gameStore
	ledger    settler
	notify    NotifyFunc
	now       func() time.Time
	ttl       time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService создаёт сервис столов.
func NewService(registry *Registry, extractor *Extractor, store gameStore, ledger settler, notify NotifyFunc, ttl time.Duration) *Service {
	return &Service{
		registry:  registry,
		extractor: extractor,
		store:     store,
		ledger:    ledger,
		notify:    notify,
		now:       time.Now,
		ttl:       ttl,
		locks:     make(map[string]*sync.Mutex),
	}
}

// gameLock возвращает мьютекс конкретного стола.
func (s *Service) gameLock(gameID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[gameID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[gameID] = m
	}
	return m
}

func (s *Service) dropLock(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, gameID)
}

// WarmUp восстанавливает реестр активных столов после рестарта.
func (s *Service) WarmUp(ctx context.Context) error {
	return s.registry.WarmUp(ctx)
}

// CreateFromMessage извлекает стол из сообщения админа и регистрирует его.
func (s *Service) CreateFromMessage(ctx context.Context, chatID int64, messageID int, adminUserID int64, text string, mentions []Mention) (*Game, error) {
	table, err := s.extractor.Extract(ctx, text, mentions)
	if err != nil {
		return nil, err
	}

	createdAt := s.now()
	g := &Game{
		GameID:          NewGameID(createdAt, messageID),
		ChatID:          chatID,
		OriginMessageID: messageID,
		AdminUserID:     adminUserID,
		Stake:           table.Stake,
		Players:         table.Players,
		Status:          StatusActive,
		CreatedAt:       createdAt,
		ExpiresAt:       createdAt.Add(s.ttl),
	}

	if err := s.registry.Put(ctx, g); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"game_id": g.GameID,
		"chat_id": chatID,
		"stake":   g.Stake,
		"players": len(g.Players),
	}).Info("Стол зарегистрирован")
	return g, nil
}

// DeclareWinnersFromEdit обрабатывает правку сообщения-стола с отметками ✅.
// Сначала прямая привязка по message_id; если её нет — поиск активного
// стола по пересечению identity (правка могла прийти с другим ID);
// если и его нет — лезем в базу: повторная доставка той же правки после
// расчёта должна ответить "уже рассчитан", а не "стол не найден".
func (s *Service) DeclareWinnersFromEdit(ctx context.Context, chatID int64, messageID int, text string, mentions []Mention) (*Game, []*Player, error) {
	g, ok := s.registry.Get(chatID, messageID)
	if !ok {
		g = FindGameByOverlap(s.registry.ListActive(), text, mentions)
		if g == nil {
			prev, err := s.store.GetByOrigin(ctx, chatID, messageID)
			if err != nil {
				return nil, nil, common.ErrGameNotFound
			}
			return prev, nil, closedStatusError(prev.Status)
		}
		log.WithFields(log.Fields{
			"game_id":    g.GameID,
			"message_id": messageID,
		}).Info("Стол найден по пересечению identity")
	}

	winners, err := g.ResolveWinners(text, mentions)
	if err != nil {
		return g, nil, err
	}

	if err := s.settle(ctx, g, winners); err != nil {
		return g, nil, err
	}
	return g, winners, nil
}

// DeclareWinnerFromCallback обрабатывает нажатие кнопки выбора победителя.
func (s *Service) DeclareWinnerFromCallback(ctx context.Context, data string) (*Game, *Player, error) {
	gameID, hint, ok := ParseWinnerCallback(data)
	if !ok {
		return nil, nil, fmt.Errorf("%w: непонятный payload %q", common.ErrGameNotFound, data)
	}

	g, found := s.registry.GetByGameID(gameID)
	if !found {
		// Повторное нажатие кнопки по уже закрытому столу
		prev, err := s.store.GetByGameID(ctx, gameID)
		if err != nil {
			return nil, nil, common.ErrGameNotFound
		}
		return prev, nil, closedStatusError(prev.Status)
	}

	p := g.PlayerByHint(hint)
	if p == nil {
		return g, nil, fmt.Errorf("%w: %q", common.ErrWinnerNotFound, hint)
	}

	if err := s.settle(ctx, g, []*Player{p}); err != nil {
		return g, nil, err
	}
	return g, p, nil
}

// closedStatusError переводит статус стола, которого нет в реестре
// активных, в ошибку для вызывающей стороны.
func closedStatusError(status string) error {
	switch status {
	case StatusCompleted:
		return common.ErrAlreadySettled
	case StatusCancelled:
		return common.ErrAlreadyCancelled
	default:
		return common.ErrGameNotActive
	}
}

// settle рассчитывает стол с данным набором победителей.
func (s *Service) settle(ctx context.Context, g *Game, winners []*Player) error {
	lock := s.gameLock(g.GameID)
	lock.Lock()
	defer lock.Unlock()

	if g.Status != StatusActive {
		return common.ErrAlreadySettled
	}

	hints := make([]string, 0, len(winners))
	for _, w := range winners {
		hints = append(hints, w.DisplayHint)
	}

	if err := s.ledger.SettleGame(ctx, g.GameID, hints, s.toParticipants(g, winners)); err != nil {
		return err
	}

	completedAt := s.now()
	g.Status = StatusCompleted
	g.Winners = hints
	g.CompletedAt = &completedAt
	s.registry.Remove(g.GameID)
	s.dropLock(g.GameID)

	log.WithFields(log.Fields{
		"game_id": g.GameID,
		"winners": strings.Join(hints, ", "),
	}).Info("Стол рассчитан")
	return nil
}

// Cancel отменяет стол по его сообщению-источнику.
// Активный стол закрывается без движений по балансам (ставки при создании
// не списывались); рассчитанный — разворачивается через леджер.
func (s *Service) Cancel(ctx context.Context, chatID int64, messageID int) (*Game, error) {
	if g, ok := s.registry.Get(chatID, messageID); ok {
		lock := s.gameLock(g.GameID)
		lock.Lock()
		defer lock.Unlock()

		if err := s.store.MarkCancelled(ctx, g.GameID); err != nil {
			return nil, err
		}
		cancelledAt := s.now()
		g.Status = StatusCancelled
		g.CancelledAt = &cancelledAt
		s.registry.Remove(g.GameID)
		s.dropLock(g.GameID)

		log.WithField("game_id", g.GameID).Info("Активный стол отменён")
		return g, nil
	}

	g, err := s.store.GetByOrigin(ctx, chatID, messageID)
	if err != nil {
		return nil, err
	}

	switch g.Status {
	case StatusCancelled:
		return nil, common.ErrAlreadyCancelled
	case StatusCompleted:
		winners := map[string]bool{}
		for _, h := range g.Winners {
			winners[strings.ToLower(h)] = true
		}
		var wp []*Player
		for i := range g.Players {
			if winners[strings.ToLower(g.Players[i].DisplayHint)] {
				wp = append(wp, &g.Players[i])
			}
		}
		if err := s.ledger.ReverseGame(ctx, g.GameID, s.toParticipants(g, wp)); err != nil {
			return nil, err
		}
		cancelledAt := s.now()
		g.Status = StatusCancelled
		g.CancelledAt = &cancelledAt

		log.WithField("game_id", g.GameID).Info("Рассчитанный стол отменён, расчёт развёрнут")
		return g, nil
	default:
		return nil, common.ErrGameNotActive
	}
}

// ExpireStale закрывает активные столы старше TTL. Денег не двигает.
// Возвращает список закрытых столов для уведомлений.
func (s *Service) ExpireStale(ctx context.Context) []*Game {
	now := s.now()
	var expired []*Game

	for _, g := range s.registry.ListActive() {
		if g.ExpiresAt.After(now) {
			continue
		}
		if s.expireOne(ctx, g) {
			expired = append(expired, g)
		}
	}

	if len(expired) > 0 && s.notify != nil {
		for _, g := range expired {
			s.notify(g.ChatID, fmt.Sprintf(
				"⏰ Стол на %s истёк (%s): победитель не объявлен за отведённое время. Балансы не изменены.",
				common.FormatMoney(g.Stake), playerList(g),
			))
		}
	}
	return expired
}

// expireOne закрывает один истёкший стол под его мьютексом.
// Мьютекс общий с settle: пока идёт расчёт, свип ждёт, а после —
// перепроверяет статус и не трогает уже рассчитанный стол.
func (s *Service) expireOne(ctx context.Context, g *Game) bool {
	lock := s.gameLock(g.GameID)
	lock.Lock()
	defer lock.Unlock()

	if g.Status != StatusActive {
		// Стол закрылся, пока мы ждали мьютекс; реестр почистит владелец перехода
		return false
	}

	if err := s.store.MarkExpired(ctx, g.GameID); err != nil {
		if errors.Is(err, common.ErrGameNotActive) {
			// База уже знает другой статус — кэш отстал, убираем
			s.registry.Remove(g.GameID)
			return false
		}
		// Временный сбой БД: стол остаётся в реестре, доберём следующим свипом
		log.WithError(err).WithField("game_id", g.GameID).Error("Ошибка истечения стола")
		return false
	}

	g.Status = StatusExpired
	s.registry.Remove(g.GameID)
	s.dropLock(g.GameID)

	log.WithField("game_id", g.GameID).Info("Стол истёк по TTL")
	return true
}

// ListActive возвращает снимок активных столов (для /games).
func (s *Service) ListActive() []*Game {
	return s.registry.ListActive()
}

// toParticipants переводит игроков стола во входной формат леджера,
// помечая победителей.
func (s *Service) toParticipants(g *Game, winners []*Player) []ledger.Participant {
	isWinner := map[*Player]bool{}
	for _, w := range winners {
		isWinner[w] = true
	}
	parts := make([]ledger.Participant, 0, len(g.Players))
	for i := range g.Players {
		p := &g.Players[i]
		parts = append(parts, ledger.Participant{
			UserID:         p.UserID,
			DisplayHint:    p.DisplayHint,
			Stake:          p.Stake,
			CommissionRate: p.CommissionRate,
			Winner:         isWinner[p],
		})
	}
	return parts
}

func playerList(g *Game) string {
	hints := make([]string, 0, len(g.Players))
	for i := range g.Players {
		hints = append(hints, g.Players[i].DisplayHint)
	}
	return strings.Join(hints, ", ")
}
