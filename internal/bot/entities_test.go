package bot

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestMentionsFromEntitiesASCII(t *testing.T) {
	text := "@raju\n@vicky\n400 Full"
	entities := []tgbotapi.MessageEntity{
		{Type: "mention", Offset: 0, Length: 5},
		{Type: "mention", Offset: 6, Length: 6},
	}

	mentions := MentionsFromEntities(text, entities)
	if len(mentions) != 2 {
		t.Fatalf("mentions = %+v", mentions)
	}
	if mentions[0].Handle != "raju" || mentions[1].Handle != "vicky" {
		t.Fatalf("handles: %+v", mentions)
	}
	if got := text[mentions[1].Offset : mentions[1].Offset+mentions[1].Length]; got != "@vicky" {
		t.Fatalf("диапазон указывает на %q", got)
	}
}

func TestMentionsFromEntitiesEmoji(t *testing.T) {
	// Эмодзи до упоминания: 🎲 занимает 2 единицы UTF-16, но 4 байта.
	// Telegram считает offset в UTF-16 — проверяем пересчёт.
	text := "🎲 @raju играет"
	entities := []tgbotapi.MessageEntity{
		{Type: "mention", Offset: 3, Length: 5},
	}

	mentions := MentionsFromEntities(text, entities)
	if len(mentions) != 1 {
		t.Fatalf("mentions = %+v", mentions)
	}
	m := mentions[0]
	if got := text[m.Offset : m.Offset+m.Length]; got != "@raju" {
		t.Fatalf("диапазон указывает на %q", got)
	}
	if m.Handle != "raju" {
		t.Fatalf("handle = %q", m.Handle)
	}
}

func TestMentionsFromEntitiesTextMention(t *testing.T) {
	text := "Suresh Kumar выиграл"
	entities := []tgbotapi.MessageEntity{
		{Type: "text_mention", Offset: 0, Length: 12, User: &tgbotapi.User{ID: 103, UserName: ""}},
	}

	mentions := MentionsFromEntities(text, entities)
	if len(mentions) != 1 {
		t.Fatalf("mentions = %+v", mentions)
	}
	if mentions[0].UserID != 103 {
		t.Fatalf("UserID = %d", mentions[0].UserID)
	}
	if got := text[mentions[0].Offset : mentions[0].Offset+mentions[0].Length]; got != "Suresh Kumar" {
		t.Fatalf("диапазон указывает на %q", got)
	}
}

func TestMentionsFromEntitiesSkipsOtherTypes(t *testing.T) {
	text := "/balance жирный"
	entities := []tgbotapi.MessageEntity{
		{Type: "bot_command", Offset: 0, Length: 8},
		{Type: "bold", Offset: 9, Length: 6},
	}

	if mentions := MentionsFromEntities(text, entities); mentions != nil {
		t.Fatalf("mentions = %+v", mentions)
	}
}

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cmd, args, ok := p.ParseCommand("/addbalance @raju 500")
	if !ok || cmd != "addbalance" || len(args) != 2 {
		t.Fatalf("cmd=%q args=%v ok=%v", cmd, args, ok)
	}

	cmd, _, ok = p.ParseCommand("/balance@ludobot")
	if !ok || cmd != "balance" {
		t.Fatalf("суффикс бота не отброшен: %q", cmd)
	}

	if _, _, ok := p.ParseCommand("просто текст"); ok {
		t.Fatalf("текст без префикса распознан как команда")
	}
	if _, _, ok := p.ParseCommand("/"); ok {
		t.Fatalf("одинокий префикс распознан как команда")
	}
}
