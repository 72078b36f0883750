// Package bot — entities.go переводит структурированные упоминания Telegram
// во внутренний формат. Telegram даёт offset/length в кодовых единицах
// UTF-16, а весь разбор текста внутри идёт по байтам — конвертируем здесь,
// чтобы дальше об этом никто не думал.
package bot

import (
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ludo-manager/internal/features/games"
)

// MentionsFromEntities извлекает упоминания из entities сообщения,
// пересчитав диапазоны в байтовые.
// "text_mention" несёт привязанный платформой UserID (имя без @),
// "mention" — только @username текстом.
func MentionsFromEntities(text string, entities []tgbotapi.MessageEntity) []games.Mention {
	if len(entities) == 0 {
		return nil
	}

	// Префиксные суммы: байтовый offset для каждого UTF-16 offset
	u16ToByte := utf16ByteOffsets(text)

	var out []games.Mention
	for _, e := range entities {
		if e.Type != "mention" && e.Type != "text_mention" {
			continue
		}
		start, okS := u16ToByte[e.Offset]
		end, okE := u16ToByte[e.Offset+e.Length]
		if !okS || !okE || end <= start {
			continue
		}

		m := games.Mention{Offset: start, Length: end - start}
		if e.Type == "text_mention" && e.User != nil {
			m.UserID = e.User.ID
			m.Handle = e.User.UserName
		} else {
			// "@raju" → "raju"
			handle := text[start:end]
			if len(handle) > 1 && handle[0] == '@' {
				m.Handle = handle[1:]
			}
		}
		out = append(out, m)
	}
	return out
}

// utf16ByteOffsets строит отображение UTF-16 offset → байтовый offset.
func utf16ByteOffsets(text string) map[int]int {
	mapping := make(map[int]int, len(text)+1)
	u16 := 0
	for byteOff, r := range text {
		mapping[u16] = byteOff
		u16 += len(utf16.Encode([]rune{r}))
	}
	mapping[u16] = len(text)
	return mapping
}
