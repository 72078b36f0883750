// Package games — resolver.go сопоставляет отметки победителя в правленном
// сообщении с игроками стола. Админ ставит ✅ рядом с именем, часто с
// опечатками или сокращениями, поэтому сопоставление идёт ярусами от
// строгого к нестрогому, и набор победителей принимается только целиком.
package games

import (
	"fmt"
	"strings"

	"ludo-manager/internal/common"
)

// Глифы победы. Админы ставят что под руку попало.
var winnerGlyphs = []string{"✅", "✔", "✓", "☑"}

// HasWinnerMark сообщает, есть ли в тексте хотя бы один глиф победы.
// Транспорт использует это как дешёвый фильтр правок.
func HasWinnerMark(text string) bool {
	for _, g := range winnerGlyphs {
		if strings.Contains(text, g) {
			return true
		}
	}
	return false
}

// winnerHint — одна отмеченная строка: подсказка и её байтовый диапазон
// в тексте (для проверки пересечения со структурированными упоминаниями).
type winnerHint struct {
	text  string
	start int
	end   int
}

// winnerHints собирает подсказки из отмеченных строк: текст строки до
// первого глифа, с обрезанными пробелами.
func winnerHints(text string) []winnerHint {
	var out []winnerHint
	offset := 0
	for _, rawLine := range strings.Split(text, "\n") {
		lineStart := offset
		offset += len(rawLine) + 1

		glyphPos := -1
		for _, g := range winnerGlyphs {
			if p := strings.Index(rawLine, g); p >= 0 && (glyphPos < 0 || p < glyphPos) {
				glyphPos = p
			}
		}
		if glyphPos < 0 {
			continue
		}

		before := rawLine[:glyphPos]
		trimmed := strings.TrimSpace(before)
		if trimmed == "" {
			continue
		}
		// Байтовый диапазон подсказки внутри полного текста
		lead := strings.Index(before, trimmed)
		out = append(out, winnerHint{
			text:  trimmed,
			start: lineStart + lead,
			end:   lineStart + lead + len(trimmed),
		})
	}
	return out
}

// resolveHint сопоставляет одну подсказку с игроком стола.
// Ярусы, от строгого к нестрогому:
//  1. структурированное упоминание в диапазоне подсказки — авторитетно:
//     если привязанный ID не из стола, дальше не ищем;
//  2. @username;
//  3. точное совпадение имени или подсказки стола (без регистра);
//  4. префикс; 5. подстрока.
func (g *Game) resolveHint(h winnerHint, mentions []Mention) *Player {
	for _, m := range mentions {
		if !m.overlaps(h.start, h.end) {
			continue
		}
		if m.UserID != 0 {
			return g.PlayerByUserID(m.UserID)
		}
		if m.Handle != "" {
			return g.PlayerByHandle(m.Handle)
		}
	}

	if strings.HasPrefix(h.text, "@") {
		return g.PlayerByHandle(h.text)
	}

	needle := strings.ToLower(h.text)

	if p := g.PlayerByHint(h.text); p != nil {
		return p
	}
	for i := range g.Players {
		if strings.EqualFold(g.Players[i].Name, h.text) ||
			strings.EqualFold(g.Players[i].Username, h.text) {
			return &g.Players[i]
		}
	}
	for i := range g.Players {
		if matchesLoose(&g.Players[i], needle, strings.HasPrefix) {
			return &g.Players[i]
		}
	}
	for i := range g.Players {
		if matchesLoose(&g.Players[i], needle, strings.Contains) {
			return &g.Players[i]
		}
	}
	return nil
}

func matchesLoose(p *Player, needle string, match func(s, substr string) bool) bool {
	for _, field := range []string{p.Name, p.DisplayHint, p.Username} {
		if field == "" {
			continue
		}
		if match(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// ResolveWinners сопоставляет все отмеченные строки с игроками стола.
// Всё или ничего: одна нераспознанная подсказка — и весь набор отклоняется
// с ErrWinnerNotFound, частичный расчёт недопустим.
func (g *Game) ResolveWinners(text string, mentions []Mention) ([]*Player, error) {
	hints := winnerHints(text)
	if len(hints) == 0 {
		return nil, common.ErrWinnerNotFound
	}

	seen := map[string]bool{}
	var winners []*Player
	for _, h := range hints {
		p := g.resolveHint(h, mentions)
		if p == nil {
			return nil, fmt.Errorf("%w: %q", common.ErrWinnerNotFound, h.text)
		}
		key := strings.ToLower(p.DisplayHint)
		if p.UserID != 0 {
			key = "id" + itoa(p.UserID)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		winners = append(winners, p)
	}
	return winners, nil
}

// overlapScore считает, сколько ИГРОКОВ стола упомянуто в тексте.
// Игрок засчитывается один раз, каким бы из своих identity он ни совпал
// (привязанный ID, @username, подсказка стола).
func (g *Game) overlapScore(text string, mentions []Mention) int {
	lower := strings.ToLower(text)
	score := 0

	for i := range g.Players {
		p := &g.Players[i]
		if playerMentioned(p, lower, mentions) {
			score++
		}
	}
	return score
}

func playerMentioned(p *Player, lowerText string, mentions []Mention) bool {
	for _, m := range mentions {
		if p.UserID != 0 && m.UserID == p.UserID {
			return true
		}
		if p.Username != "" && m.Handle != "" && strings.EqualFold(p.Username, m.Handle) {
			return true
		}
	}
	if p.Username != "" && strings.Contains(lowerText, strings.ToLower(p.Username)) {
		return true
	}
	if p.DisplayHint != "" && strings.Contains(lowerText, strings.ToLower(p.DisplayHint)) {
		return true
	}
	return false
}

// FindGameByOverlap ищет активный стол по содержимому правки, когда прямая
// привязка по message_id не сработала (Telegram иногда присылает правку с
// другим ID после конвертации медиа). Стол считается найденным, если в
// тексте встречается не меньше двух его identity; при равенстве очков
// берём самый свежий стол.
func FindGameByOverlap(actives []*Game, text string, mentions []Mention) *Game {
	var (
		best      *Game
		bestScore int
	)
	for _, g := range actives {
		score := g.overlapScore(text, mentions)
		if score < 2 {
			continue
		}
		if score > bestScore || (score == bestScore && best != nil && g.CreatedAt.After(best.CreatedAt)) {
			best = g
			bestScore = score
		}
	}
	return best
}

// WinnerCallbackData строит payload кнопки выбора победителя.
// Формат "winner_<gameID>_<hint>"; gameID без подчёркиваний, поэтому
// разбор по первым двум "_" однозначен даже с подчёркиваниями в hint.
func WinnerCallbackData(gameID string, p *Player) string {
	return fmt.Sprintf("winner_%s_%s", gameID, p.DisplayHint)
}

// ParseWinnerCallback разбирает payload кнопки. Возвращает gameID и
// подсказку игрока; ok == false для чужих или битых payload.
func ParseWinnerCallback(data string) (gameID, hint string, ok bool) {
	parts := strings.SplitN(data, "_", 3)
	if len(parts) != 3 || parts[0] != "winner" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
