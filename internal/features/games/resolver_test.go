package games

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ludo-manager/internal/common"
)

func testGame() *Game {
	return &Game{
		GameID:          "g1700000000-42",
		ChatID:          -100,
		OriginMessageID: 42,
		Stake:           400,
		Status:          StatusActive,
		CreatedAt:       time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
		Players: []Player{
			{UserID: 101, Username: "raju", Name: "Raju", DisplayHint: "raju", Stake: 400, CommissionRate: 0.05},
			{UserID: 102, Username: "vicky", Name: "Vicky Singh", DisplayHint: "vicky", Stake: 400, CommissionRate: 0.10},
			{UserID: 0, Name: "", DisplayHint: "Newcomer", Stake: 400, CommissionRate: 0.05},
		},
	}
}

func TestHasWinnerMark(t *testing.T) {
	for _, text := range []string{"raju ✅", "vicky ✔", "x ✓", "y ☑"} {
		if !HasWinnerMark(text) {
			t.Fatalf("HasWinnerMark(%q) = false", text)
		}
	}
	if HasWinnerMark("raju выиграл") {
		t.Fatalf("HasWinnerMark без глифа = true")
	}
}

func TestResolveWinnersExactHint(t *testing.T) {
	g := testGame()

	winners, err := g.ResolveWinners("raju ✅\nvicky\n400 Full", nil)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	if len(winners) != 1 || winners[0].UserID != 101 {
		t.Fatalf("winners = %+v", winners)
	}
}

func TestResolveWinnersHandle(t *testing.T) {
	g := testGame()

	winners, err := g.ResolveWinners("@VICKY ✅", nil)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	if winners[0].UserID != 102 {
		t.Fatalf("winners = %+v", winners)
	}
}

func TestResolveWinnersPrefixAndSubstring(t *testing.T) {
	g := testGame()

	// Префикс имени
	winners, err := g.ResolveWinners("Vick ✅", nil)
	if err != nil || winners[0].UserID != 102 {
		t.Fatalf("префикс: winners = %+v, err = %v", winners, err)
	}

	// Подстрока имени
	winners, err = g.ResolveWinners("Singh ✅", nil)
	if err != nil || winners[0].UserID != 102 {
		t.Fatalf("подстрока: winners = %+v, err = %v", winners, err)
	}
}

func TestResolveWinnersAllOrNothing(t *testing.T) {
	g := testGame()

	_, err := g.ResolveWinners("raju ✅\nСовершенноНеИзСтола ✅", nil)
	if !errors.Is(err, common.ErrWinnerNotFound) {
		t.Fatalf("err = %v, ожидали ErrWinnerNotFound", err)
	}
}

func TestResolveWinnersNoMarks(t *testing.T) {
	g := testGame()

	if _, err := g.ResolveWinners("raju\nvicky", nil); !errors.Is(err, common.ErrWinnerNotFound) {
		t.Fatalf("err = %v, ожидали ErrWinnerNotFound", err)
	}
}

func TestResolveWinnersEntityAuthoritative(t *testing.T) {
	g := testGame()

	// Текст совпадает с игроком стола, но text_mention указывает на чужой
	// аккаунт — ярус сущностей авторитетен, нестрогие ярусы не запускаются
	text := "raju ✅"
	mentions := []Mention{{Offset: 0, Length: 4, UserID: 555}}

	_, err := g.ResolveWinners(text, mentions)
	if !errors.Is(err, common.ErrWinnerNotFound) {
		t.Fatalf("err = %v, ожидали ErrWinnerNotFound", err)
	}

	// А с правильным ID — находит
	mentions[0].UserID = 101
	winners, err := g.ResolveWinners(text, mentions)
	if err != nil || winners[0].UserID != 101 {
		t.Fatalf("winners = %+v, err = %v", winners, err)
	}
}

func TestResolveWinnersDeduplicates(t *testing.T) {
	g := testGame()

	winners, err := g.ResolveWinners("raju ✅\n@raju ✅", nil)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	if len(winners) != 1 {
		t.Fatalf("дубль победителя не схлопнулся: %+v", winners)
	}
}

func TestResolveWinnersMulti(t *testing.T) {
	g := testGame()

	winners, err := g.ResolveWinners("raju ✅\nvicky ✅", nil)
	if err != nil {
		t.Fatalf("ResolveWinners: %v", err)
	}
	if len(winners) != 2 {
		t.Fatalf("winners = %+v", winners)
	}
}

func TestWinnerCallbackRoundTrip(t *testing.T) {
	g := testGame()
	p := &g.Players[2] // DisplayHint "Newcomer"
	p.DisplayHint = "New_comer_X"

	data := WinnerCallbackData(g.GameID, p)
	gameID, hint, ok := ParseWinnerCallback(data)
	if !ok {
		t.Fatalf("ParseWinnerCallback(%q) не разобрался", data)
	}
	if gameID != g.GameID {
		t.Fatalf("gameID = %q, ожидали %q", gameID, g.GameID)
	}
	// Подчёркивания в подсказке не ломают разбор: ID без подчёркиваний
	if hint != "New_comer_X" {
		t.Fatalf("hint = %q", hint)
	}
}

func TestParseWinnerCallbackRejectsGarbage(t *testing.T) {
	for _, data := range []string{"", "winner_", "winner_x", "other_g1-2_raju", "winner__hint"} {
		if _, _, ok := ParseWinnerCallback(data); ok {
			t.Fatalf("ParseWinnerCallback(%q) = ok", data)
		}
	}
}

func TestFindGameByOverlap(t *testing.T) {
	g1 := testGame()
	g2 := testGame()
	g2.GameID = "g1700000100-50"
	g2.OriginMessageID = 50
	g2.CreatedAt = g1.CreatedAt.Add(time.Minute)
	g2.Players = []Player{
		{UserID: 201, Username: "amit", Name: "Amit", DisplayHint: "amit", Stake: 200},
		{UserID: 202, Username: "deepak", Name: "Deepak", DisplayHint: "deepak", Stake: 200},
	}
	actives := []*Game{g1, g2}

	// Два identity второго стола
	if got := FindGameByOverlap(actives, "amit ✅\ndeepak\n200 Full", nil); got != g2 {
		t.Fatalf("нашёлся не тот стол: %v", got)
	}

	// Одного identity мало
	if got := FindGameByOverlap(actives, "amit ✅", nil); got != nil {
		t.Fatalf("стол найден по одному совпадению: %v", got)
	}

	// Ничего общего
	if got := FindGameByOverlap(actives, "посторонний текст ✅", nil); got != nil {
		t.Fatalf("стол найден в постороннем тексте: %v", got)
	}
}

func TestFindGameByOverlapPrefersLatest(t *testing.T) {
	g1 := testGame()
	g2 := testGame()
	g2.GameID = "g1700000100-50"
	g2.OriginMessageID = 50
	g2.CreatedAt = g1.CreatedAt.Add(time.Minute)

	// Составы одинаковые — побеждает более свежий
	got := FindGameByOverlap([]*Game{g1, g2}, "raju ✅\nvicky", nil)
	if got != g2 {
		t.Fatalf("ожидали более свежий стол, получили %v", got)
	}
}

func TestWinnerHintsSpans(t *testing.T) {
	text := "  raju ✅ победил\nvicky"
	hints := winnerHints(text)
	if len(hints) != 1 {
		t.Fatalf("hints = %+v", hints)
	}
	h := hints[0]
	if h.text != "raju" {
		t.Fatalf("hint text = %q", h.text)
	}
	if got := text[h.start:h.end]; got != "raju" {
		t.Fatalf("диапазон указывает на %q", got)
	}
	if !strings.Contains(text[:h.start], " ") {
		t.Fatalf("ведущие пробелы не учтены в диапазоне")
	}
}
