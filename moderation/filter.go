package moderation

import (
	"log/slog"

	"github.com/abadojack/whatlanggo"
)

// Filter picks the dictionary of the language a message is written in.
// When the language cannot be told reliably, or has no dictionary,
// the union of all dictionaries is used.
type Filter struct {
	byLang   map[string]*Moderator
	fallback *Moderator
	log      *slog.Logger
}

func NewFilter(dictionaries Dictionaries, censoredChar rune, log *slog.Logger) (*Filter, error) {
	byLang := make(map[string]*Moderator, len(dictionaries))
	for lang, words := range dictionaries {
		mod, err := NewModerator(words, censoredChar, log)
		if err != nil {
			return nil, err
		}
		byLang[lang] = mod
	}
	fallback, err := NewModerator(dictionaries.All(), censoredChar, log)
	if err != nil {
		return nil, err
	}
	log.Info("Moderation dictionaries loaded", "languages", dictionaries.Languages())
	return &Filter{byLang: byLang, fallback: fallback, log: log}, nil
}

// Moderate returns the censored text and the words that were masked.
func (f *Filter) Moderate(text string) (string, []string) {
	info := whatlanggo.Detect(text)
	lang := info.Lang.Iso6391()

	mod := f.fallback
	if info.IsReliable() {
		if m, ok := f.byLang[lang]; ok {
			mod = m
		}
	}

	censored, words := mod.Censor(text)
	if len(words) > 0 {
		f.log.Debug("Message censored", "lang", lang, "words", len(words))
	}
	return censored, words
}
