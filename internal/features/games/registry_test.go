package games

import (
	"context"
	"errors"
	"testing"
	"time"

	"ludo-manager/internal/common"
)

// fakeGameStore — хранилище столов в памяти для тестов.
// Create индексирует стол по origin и game_id, поэтому GetByOrigin и
// GetByGameID видят его в любом статусе — как настоящая база.
type fakeGameStore struct {
	created   []*Game
	actives   []*Game
	createErr error
	expireErr error

	expired   []string
	cancelled []string

	byOrigin map[int]*Game
	byGameID map[string]*Game
}

func (f *fakeGameStore) Create(_ context.Context, g *Game) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, g)
	if f.byOrigin == nil {
		f.byOrigin = map[int]*Game{}
	}
	if f.byGameID == nil {
		f.byGameID = map[string]*Game{}
	}
	f.byOrigin[g.OriginMessageID] = g
	f.byGameID[g.GameID] = g
	return nil
}

func (f *fakeGameStore) ListActive(_ context.Context) ([]*Game, error) {
	return f.actives, nil
}

func (f *fakeGameStore) GetByOrigin(_ context.Context, _ int64, messageID int) (*Game, error) {
	if g, ok := f.byOrigin[messageID]; ok {
		return g, nil
	}
	return nil, common.ErrGameNotFound
}

func (f *fakeGameStore) GetByGameID(_ context.Context, gameID string) (*Game, error) {
	if g, ok := f.byGameID[gameID]; ok {
		return g, nil
	}
	return nil, common.ErrGameNotFound
}

func (f *fakeGameStore) MarkExpired(_ context.Context, gameID string) error {
	if f.expireErr != nil {
		return f.expireErr
	}
	f.expired = append(f.expired, gameID)
	return nil
}

func (f *fakeGameStore) MarkCancelled(_ context.Context, gameID string) error {
	f.cancelled = append(f.cancelled, gameID)
	return nil
}

func TestRegistryPutAndGet(t *testing.T) {
	store := &fakeGameStore{}
	r := NewRegistry(store)
	g := testGame()

	if err := r.Put(context.Background(), g); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("стол не дошёл до хранилища")
	}

	got, ok := r.Get(g.ChatID, g.OriginMessageID)
	if !ok || got != g {
		t.Fatalf("Get не нашёл стол")
	}
	got, ok = r.GetByGameID(g.GameID)
	if !ok || got != g {
		t.Fatalf("GetByGameID не нашёл стол")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry(&fakeGameStore{})
	g := testGame()

	if err := r.Put(context.Background(), g); err != nil {
		t.Fatalf("Put: %v", err)
	}

	dup := testGame()
	if err := r.Put(context.Background(), dup); !errors.Is(err, common.ErrDuplicateGame) {
		t.Fatalf("err = %v, ожидали ErrDuplicateGame", err)
	}
}

func TestRegistryStoreErrorKeepsCacheClean(t *testing.T) {
	store := &fakeGameStore{createErr: errors.New("db down")}
	r := NewRegistry(store)

	if err := r.Put(context.Background(), testGame()); err == nil {
		t.Fatalf("ошибка хранилища проглочена")
	}
	if _, ok := r.Get(-100, 42); ok {
		t.Fatalf("стол попал в кэш при ошибке записи")
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(&fakeGameStore{})
	g := testGame()
	if err := r.Put(context.Background(), g); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r.Remove(g.GameID)
	if _, ok := r.Get(g.ChatID, g.OriginMessageID); ok {
		t.Fatalf("стол остался в кэше по origin")
	}
	if _, ok := r.GetByGameID(g.GameID); ok {
		t.Fatalf("стол остался в кэше по game_id")
	}

	// Повторный Remove безвреден
	r.Remove(g.GameID)
}

func TestRegistryWarmUp(t *testing.T) {
	g1 := testGame()
	g2 := testGame()
	g2.GameID = "g1700000100-50"
	g2.OriginMessageID = 50
	g2.CreatedAt = g1.CreatedAt.Add(time.Minute)

	store := &fakeGameStore{actives: []*Game{g1, g2}}
	r := NewRegistry(store)

	if err := r.WarmUp(context.Background()); err != nil {
		t.Fatalf("WarmUp: %v", err)
	}
	if len(r.ListActive()) != 2 {
		t.Fatalf("после WarmUp активных %d, ожидали 2", len(r.ListActive()))
	}
	if _, ok := r.Get(g2.ChatID, 50); !ok {
		t.Fatalf("восстановленный стол не ищется по origin")
	}
}
