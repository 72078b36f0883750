// Package games — extractor.go разбирает свободный текст сообщения-стола
// в структурированный вид: список игроков и ставка.
// Админы пишут столы как попало (эмодзи, лишние пробелы, без @),
// поэтому разбор обязан быть терпимым к мусору, но отклонять явно битые
// столы вместо молчаливого создания плохой игры.
package games

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"ludo-manager/internal/common"
	"ludo-manager/internal/features/users"
)

// userDirectory — то, что экстрактору нужно от хранилища пользователей.
type userDirectory interface {
	ResolveHint(ctx context.Context, hint string) (*users.User, error)
	GetByUserID(ctx context.Context, userID int64) (*users.User, error)
}

// Extractor извлекает стол из текста и упоминаний.
type Extractor struct {
	dir         userDirectory
	maxStake    int64
	defaultRate float64
}

// NewExtractor создаёт экстрактор столов.
func NewExtractor(dir userDirectory, maxStake int64, defaultRate float64) *Extractor {
	return &Extractor{dir: dir, maxStake: maxStake, defaultRate: defaultRate}
}

var (
	// Строка ставки: "400 Full", "2k full", "2 K FULL". Знак ловим сами,
	// чтобы "-5 Full" отклонялся, а не превращался в ставку 5.
	stakeRe = regexp.MustCompile(`(?i)(-?\d+)\s*(k)?\s*full`)
	// Ссылка на игрока: "@raju", "raju", "Raju Bhai 🎲" — берём первый токен
	tokenRe = regexp.MustCompile(`@?(\w+)`)
)

// Служебные слова, которые не могут быть игроком
var noiseTokens = map[string]bool{
	"full":  true,
	"table": true,
	"game":  true,
}

// HasStakeKeyword быстро проверяет, похоже ли сообщение на стол.
// Используется транспортом, чтобы не гонять полный разбор на каждом сообщении.
func HasStakeKeyword(text string) bool {
	return strings.Contains(strings.ToLower(text), "full")
}

// Extract разбирает текст стола. Возвращает ErrMalformedTable, если не
// набралось 2 игроков или нет строки ставки, и ErrStakeOutOfRange, если
// ставка нулевая, отрицательная или выше потолка.
func (e *Extractor) Extract(ctx context.Context, text string, mentions []Mention) (*ExtractedTable, error) {
	var (
		stake      int64
		stakeFound bool
		players    []Player
		seenIDs    = map[int64]bool{}
		seenHints  = map[string]bool{}
	)

	offset := 0
	for _, rawLine := range strings.Split(text, "\n") {
		lineStart := offset
		offset += len(rawLine) + 1 // +1 за "\n"

		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}

		// Строка ставки?
		if m := stakeRe.FindStringSubmatch(line); m != nil {
			if stakeFound {
				continue // первая строка ставки выигрывает
			}
			value, err := parseStake(m[1], m[2])
			if err != nil {
				return nil, err
			}
			if value <= 0 || value > e.maxStake {
				return nil, common.ErrStakeOutOfRange
			}
			stake = value
			stakeFound = true
			continue
		}

		// Кандидат в игроки
		p, ok := e.playerFromLine(ctx, rawLine, lineStart, mentions)
		if !ok {
			continue
		}

		// Дедупликация: по привязанному ID, иначе по подсказке
		if p.UserID != 0 {
			if seenIDs[p.UserID] {
				continue
			}
			seenIDs[p.UserID] = true
		} else {
			key := strings.ToLower(p.DisplayHint)
			if seenHints[key] {
				continue
			}
			seenHints[key] = true
		}

		players = append(players, p)
	}

	if !stakeFound || len(players) < 2 {
		return nil, common.ErrMalformedTable
	}

	for i := range players {
		players[i].Stake = stake
	}

	return &ExtractedTable{Players: players, Stake: stake}, nil
}

// playerFromLine извлекает игрока из одной строки.
// Структурированное упоминание в границах строки авторитетно;
// иначе откатываемся на первый токен и ищем его в хранилище.
func (e *Extractor) playerFromLine(ctx context.Context, rawLine string, lineStart int, mentions []Mention) (Player, bool) {
	lineEnd := lineStart + len(rawLine)

	for _, m := range mentions {
		if !m.overlaps(lineStart, lineEnd) {
			continue
		}
		if m.UserID != 0 {
			// Платформа уже привязала упоминание к аккаунту — без неоднозначности
			return e.playerFromResolvedID(ctx, m)
		}
		if m.Handle != "" {
			return e.playerFromHint(ctx, m.Handle), true
		}
	}

	// Нет упоминаний — пробуем первый токен строки
	tm := tokenRe.FindStringSubmatch(strings.TrimSpace(rawLine))
	if tm == nil {
		return Player{}, false
	}
	token := tm[1]
	if len(token) <= 2 || noiseTokens[strings.ToLower(token)] {
		return Player{}, false
	}

	return e.playerFromHint(ctx, token), true
}

// playerFromResolvedID строит игрока по привязанному платформой ID.
// Если аккаунт ни разу не писал боту, записи в базе нет — игрок остаётся
// с ID, но со ставкой комиссии по умолчанию.
func (e *Extractor) playerFromResolvedID(ctx context.Context, m Mention) (Player, bool) {
	u, err := e.dir.GetByUserID(ctx, m.UserID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			hint := m.Handle
			if hint == "" {
				hint = "id" + itoa(m.UserID)
			}
			return Player{
				UserID:         m.UserID,
				Username:       m.Handle,
				DisplayHint:    hint,
				CommissionRate: e.defaultRate,
			}, true
		}
		return Player{}, false
	}
	hint := m.Handle
	if hint == "" {
		hint = u.FullName()
	}
	return Player{
		UserID:         u.UserID,
		Username:       u.Username,
		Name:           u.FullName(),
		DisplayHint:    hint,
		CommissionRate: u.CommissionRate,
	}, true
}

// playerFromHint строит игрока по текстовой подсказке: ищем аккаунт по
// @username, затем по имени; не нашли — игрок остаётся непривязанным.
func (e *Extractor) playerFromHint(ctx context.Context, hint string) Player {
	u, err := e.dir.ResolveHint(ctx, hint)
	if err != nil {
		return Player{
			DisplayHint:    hint,
			CommissionRate: e.defaultRate,
		}
	}
	return Player{
		UserID:         u.UserID,
		Username:       u.Username,
		Name:           u.FullName(),
		DisplayHint:    hint,
		CommissionRate: u.CommissionRate,
	}
}

func parseStake(digits, suffix string) (int64, error) {
	var value int64
	neg := false
	for i, ch := range digits {
		if i == 0 && ch == '-' {
			neg = true
			continue
		}
		value = value*10 + int64(ch-'0')
		if value > 1<<40 {
			return 0, common.ErrStakeOutOfRange
		}
	}
	if neg {
		value = -value
	}
	if suffix != "" {
		value *= 1000
	}
	return value, nil
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
