package games

import (
	"context"
	"errors"
	"testing"
	"time"

	"ludo-manager/internal/common"
	"ludo-manager/internal/features/ledger"
)

// fakeSettler записывает вызовы леджера.
type fakeSettler struct {
	settled  []settleCall
	reversed []settleCall
	err      error
}

type settleCall struct {
	gameID  string
	winners []string
	parts   []ledger.Participant
}

func (f *fakeSettler) SettleGame(_ context.Context, gameID string, winners []string, parts []ledger.Participant) error {
	if f.err != nil {
		return f.err
	}
	f.settled = append(f.settled, settleCall{gameID: gameID, winners: winners, parts: parts})
	return nil
}

func (f *fakeSettler) ReverseGame(_ context.Context, gameID string, parts []ledger.Participant) error {
	if f.err != nil {
		return f.err
	}
	f.reversed = append(f.reversed, settleCall{gameID: gameID, parts: parts})
	return nil
}

type testEnv struct {
	service  *Service
	store    *fakeGameStore
	settler  *fakeSettler
	notified []string
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:   &fakeGameStore{byOrigin: map[int]*Game{}},
		settler: &fakeSettler{},
		now:     time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}

	registry := NewRegistry(env.store)
	extractor := NewExtractor(testUsers(), 1_000_000, 0.05)
	notify := func(_ int64, text string) { env.notified = append(env.notified, text) }

	env.service = NewService(registry, extractor, env.store, env.settler, notify, time.Hour)
	env.service.now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) createGame(t *testing.T, messageID int, text string) *Game {
	t.Helper()
	g, err := env.service.CreateFromMessage(context.Background(), -100, messageID, 1, text, nil)
	if err != nil {
		t.Fatalf("CreateFromMessage: %v", err)
	}
	return g
}

func TestCreateFromMessage(t *testing.T) {
	env := newTestEnv(t)

	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	if g.Status != StatusActive {
		t.Fatalf("status = %q", g.Status)
	}
	if g.Stake != 400 || len(g.Players) != 2 {
		t.Fatalf("стол разобрался неверно: %+v", g)
	}
	if !g.ExpiresAt.Equal(env.now.Add(time.Hour)) {
		t.Fatalf("TTL: expires_at = %v", g.ExpiresAt)
	}
	if got, ok := env.service.registry.Get(-100, 42); !ok || got != g {
		t.Fatalf("стол не попал в реестр")
	}
}

func TestCreateDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	_, err := env.service.CreateFromMessage(context.Background(), -100, 42, 1, "@raju\n@vicky\n400 Full", nil)
	if !errors.Is(err, common.ErrDuplicateGame) {
		t.Fatalf("err = %v, ожидали ErrDuplicateGame", err)
	}
}

func TestDeclareWinnersFromEdit(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	got, winners, err := env.service.DeclareWinnersFromEdit(
		context.Background(), -100, 42, "@raju ✅\n@vicky\n400 Full", nil)
	if err != nil {
		t.Fatalf("DeclareWinnersFromEdit: %v", err)
	}
	if got != g || len(winners) != 1 || winners[0].UserID != 101 {
		t.Fatalf("winners = %+v", winners)
	}

	if len(env.settler.settled) != 1 {
		t.Fatalf("леджер вызван %d раз", len(env.settler.settled))
	}
	call := env.settler.settled[0]
	if call.gameID != g.GameID {
		t.Fatalf("gameID = %q", call.gameID)
	}
	var winnerCount int
	for _, p := range call.parts {
		if p.Winner {
			winnerCount++
			if p.UserID != 101 {
				t.Fatalf("победителем помечен %d", p.UserID)
			}
		}
	}
	if winnerCount != 1 || len(call.parts) != 2 {
		t.Fatalf("parts = %+v", call.parts)
	}

	if g.Status != StatusCompleted {
		t.Fatalf("status = %q", g.Status)
	}
	if _, ok := env.service.registry.GetByGameID(g.GameID); ok {
		t.Fatalf("рассчитанный стол остался в реестре")
	}
}

func TestSettleIdempotent(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	winners, err := g.ResolveWinners("@raju ✅", nil)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	if err := env.service.settle(context.Background(), g, winners); err != nil {
		t.Fatalf("первый settle: %v", err)
	}
	if err := env.service.settle(context.Background(), g, winners); !errors.Is(err, common.ErrAlreadySettled) {
		t.Fatalf("повторный settle: err = %v, ожидали ErrAlreadySettled", err)
	}
	if len(env.settler.settled) != 1 {
		t.Fatalf("леджер вызван %d раз", len(env.settler.settled))
	}
}

func TestEditWithoutDirectMatchFallsBackToOverlap(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	// Правка пришла с другим message_id, но состав узнаваем
	got, _, err := env.service.DeclareWinnersFromEdit(
		context.Background(), -100, 99, "raju ✅\nvicky\n400 Full", nil)
	if err != nil {
		t.Fatalf("DeclareWinnersFromEdit: %v", err)
	}
	if got != g {
		t.Fatalf("fallback нашёл не тот стол")
	}
}

func TestEditUnknownGame(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.service.DeclareWinnersFromEdit(
		context.Background(), -100, 99, "кто-то ✅", nil)
	if !errors.Is(err, common.ErrGameNotFound) {
		t.Fatalf("err = %v, ожидали ErrGameNotFound", err)
	}
}

func TestDeclareWinnerFromCallback(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	data := WinnerCallbackData(g.GameID, &g.Players[1])
	got, winner, err := env.service.DeclareWinnerFromCallback(context.Background(), data)
	if err != nil {
		t.Fatalf("DeclareWinnerFromCallback: %v", err)
	}
	if got != g || winner.UserID != 102 {
		t.Fatalf("winner = %+v", winner)
	}
	if len(env.settler.settled) != 1 {
		t.Fatalf("леджер вызван %d раз", len(env.settler.settled))
	}

	// Повторное нажатие: стол уже вне реестра, но база помнит расчёт
	_, _, err = env.service.DeclareWinnerFromCallback(context.Background(), data)
	if !errors.Is(err, common.ErrAlreadySettled) {
		t.Fatalf("повторный callback: err = %v, ожидали ErrAlreadySettled", err)
	}
	if len(env.settler.settled) != 1 {
		t.Fatalf("повторное нажатие дошло до леджера")
	}
}

func TestEditRedeclareAfterSettlement(t *testing.T) {
	env := newTestEnv(t)
	env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	edit := "@raju ✅\n@vicky\n400 Full"
	if _, _, err := env.service.DeclareWinnersFromEdit(context.Background(), -100, 42, edit, nil); err != nil {
		t.Fatalf("первая правка: %v", err)
	}

	// Та же правка доставлена второй раз: ответ "уже рассчитан",
	// а не "стол не найден", и без повторного расчёта
	_, _, err := env.service.DeclareWinnersFromEdit(context.Background(), -100, 42, edit, nil)
	if !errors.Is(err, common.ErrAlreadySettled) {
		t.Fatalf("повторная правка: err = %v, ожидали ErrAlreadySettled", err)
	}
	if len(env.settler.settled) != 1 {
		t.Fatalf("леджер вызван %d раз", len(env.settler.settled))
	}
}

func TestEditAfterCancellation(t *testing.T) {
	env := newTestEnv(t)
	env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	if _, err := env.service.Cancel(context.Background(), -100, 42); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, _, err := env.service.DeclareWinnersFromEdit(
		context.Background(), -100, 42, "@raju ✅", nil)
	if !errors.Is(err, common.ErrAlreadyCancelled) {
		t.Fatalf("правка отменённого стола: err = %v, ожидали ErrAlreadyCancelled", err)
	}
}

func TestCancelActiveMovesNoMoney(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	got, err := env.service.Cancel(context.Background(), -100, 42)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got != g || got.Status != StatusCancelled {
		t.Fatalf("status = %q", got.Status)
	}
	if len(env.store.cancelled) != 1 || env.store.cancelled[0] != g.GameID {
		t.Fatalf("MarkCancelled не вызван")
	}
	// Ставки при создании не списывались — движений быть не должно
	if len(env.settler.settled) != 0 || len(env.settler.reversed) != 0 {
		t.Fatalf("отмена активного стола сдвинула балансы")
	}
	if _, ok := env.service.registry.GetByGameID(g.GameID); ok {
		t.Fatalf("отменённый стол остался в реестре")
	}
}

func TestCancelCompletedReverses(t *testing.T) {
	env := newTestEnv(t)

	completedAt := env.now.Add(-time.Minute)
	g := testGame()
	g.Status = StatusCompleted
	g.Winners = []string{"raju"}
	g.CompletedAt = &completedAt
	env.store.byOrigin[g.OriginMessageID] = g

	got, err := env.service.Cancel(context.Background(), g.ChatID, g.OriginMessageID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("status = %q", got.Status)
	}
	if len(env.settler.reversed) != 1 {
		t.Fatalf("ReverseGame вызван %d раз", len(env.settler.reversed))
	}
	var winnerFlagged bool
	for _, p := range env.settler.reversed[0].parts {
		if p.Winner && p.UserID == 101 {
			winnerFlagged = true
		}
	}
	if !winnerFlagged {
		t.Fatalf("победитель не помечен в развороте: %+v", env.settler.reversed[0].parts)
	}
}

func TestCancelCancelledGame(t *testing.T) {
	env := newTestEnv(t)

	g := testGame()
	g.Status = StatusCancelled
	env.store.byOrigin[g.OriginMessageID] = g

	_, err := env.service.Cancel(context.Background(), g.ChatID, g.OriginMessageID)
	if !errors.Is(err, common.ErrAlreadyCancelled) {
		t.Fatalf("err = %v, ожидали ErrAlreadyCancelled", err)
	}
}

func TestExpireStale(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")
	fresh := env.createGame(t, 43, "@raju\n@vicky\n500 Full")

	// Первый стол пересёк TTL, второй ещё жив
	env.now = env.now.Add(time.Hour + time.Minute)
	fresh.ExpiresAt = env.now.Add(30 * time.Minute)

	expired := env.service.ExpireStale(context.Background())
	if len(expired) != 1 || expired[0] != g {
		t.Fatalf("expired = %+v", expired)
	}
	if g.Status != StatusExpired {
		t.Fatalf("status = %q", g.Status)
	}
	if len(env.store.expired) != 1 || env.store.expired[0] != g.GameID {
		t.Fatalf("MarkExpired не вызван")
	}
	// Истечение не двигает деньги
	if len(env.settler.settled) != 0 || len(env.settler.reversed) != 0 {
		t.Fatalf("истечение сдвинуло балансы")
	}
	if len(env.notified) != 1 {
		t.Fatalf("уведомлений %d, ожидали 1", len(env.notified))
	}
	if _, ok := env.service.registry.GetByGameID(fresh.GameID); !ok {
		t.Fatalf("живой стол выпал из реестра")
	}
}

func TestExpireSkipsGameMidSettlement(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	// Расчёт успел сменить статус, но стол ещё не выпал из реестра —
	// свип обязан перепроверить статус под мьютексом и пройти мимо
	g.Status = StatusCompleted
	env.now = env.now.Add(2 * time.Hour)

	expired := env.service.ExpireStale(context.Background())
	if len(expired) != 0 {
		t.Fatalf("свип закрыл стол в середине расчёта: %+v", expired)
	}
	if len(env.store.expired) != 0 {
		t.Fatalf("MarkExpired вызван для рассчитываемого стола")
	}
	if len(env.notified) != 0 {
		t.Fatalf("игроки уведомлены об истечении, которого не было")
	}
}

func TestExpireTransientStoreError(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")
	env.now = env.now.Add(2 * time.Hour)

	// Временный сбой БД: стол должен пережить свип в реестре
	env.store.expireErr = errors.New("db down")
	if expired := env.service.ExpireStale(context.Background()); len(expired) != 0 {
		t.Fatalf("стол истёк при сбое БД: %+v", expired)
	}
	if g.Status != StatusActive {
		t.Fatalf("status = %q", g.Status)
	}
	if _, ok := env.service.registry.GetByGameID(g.GameID); !ok {
		t.Fatalf("стол выпал из реестра при временном сбое")
	}

	// Следующий свип после восстановления добирает стол
	env.store.expireErr = nil
	expired := env.service.ExpireStale(context.Background())
	if len(expired) != 1 || expired[0] != g {
		t.Fatalf("повторный свип: expired = %+v", expired)
	}
	if g.Status != StatusExpired {
		t.Fatalf("status = %q", g.Status)
	}
}

func TestExpireRemovesWhenStoreAlreadyClosed(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")
	env.now = env.now.Add(2 * time.Hour)

	// База уже знает другой статус (условный UPDATE не нашёл active) —
	// кэш отстал и должен просто почиститься
	env.store.expireErr = common.ErrGameNotActive
	if expired := env.service.ExpireStale(context.Background()); len(expired) != 0 {
		t.Fatalf("expired = %+v", expired)
	}
	if _, ok := env.service.registry.GetByGameID(g.GameID); ok {
		t.Fatalf("отставший стол остался в реестре")
	}
}

func TestSettleLedgerErrorKeepsGameActive(t *testing.T) {
	env := newTestEnv(t)
	g := env.createGame(t, 42, "@raju\n@vicky\n400 Full")

	env.settler.err = errors.New("db down")
	_, _, err := env.service.DeclareWinnersFromEdit(
		context.Background(), -100, 42, "@raju ✅", nil)
	if err == nil {
		t.Fatalf("ошибка леджера проглочена")
	}
	if g.Status != StatusActive {
		t.Fatalf("status = %q, стол должен остаться активным", g.Status)
	}
	if _, ok := env.service.registry.GetByGameID(g.GameID); !ok {
		t.Fatalf("стол выпал из реестра при ошибке расчёта")
	}

	// После восстановления БД расчёт проходит
	env.settler.err = nil
	_, _, err = env.service.DeclareWinnersFromEdit(
		context.Background(), -100, 42, "@raju ✅", nil)
	if err != nil {
		t.Fatalf("повторный расчёт: %v", err)
	}
	if g.Status != StatusCompleted {
		t.Fatalf("status = %q", g.Status)
	}
}
