package moderation

import (
	"log/slog"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator masks dictionary words in chat messages. Matching ignores case,
// punctuation and spacing inside a word, and the usual digit or symbol
// substitutions ("sh1t", "b.a.d").
type Moderator struct {
	automaton *goahocorasick.Machine
	mask      rune
	log       *slog.Logger
}

// folded is a message reduced to the runes that matter for matching.
// at[i] is the position in the message of folded rune i.
type folded struct {
	runes []rune
	at    []int
}

// NewModerator builds the automaton over the folded form of words.
// Entries folding to nothing, pure punctuation for instance, are skipped.
func NewModerator(words []string, mask rune, log *slog.Logger) (*Moderator, error) {
	var patterns [][]rune
	for _, word := range words {
		if f := fold([]rune(word)); len(f.runes) > 0 {
			patterns = append(patterns, f.runes)
		}
	}

	mod := &Moderator{mask: mask, log: log}
	if len(patterns) == 0 {
		return mod, nil
	}
	automaton := new(goahocorasick.Machine)
	if err := automaton.Build(patterns); err != nil {
		return nil, err
	}
	mod.automaton = automaton
	log.Debug("Moderation automaton built", "patterns", len(patterns))
	return mod, nil
}

// Censor returns the message with every match masked rune for rune, spacing
// untouched, plus the dictionary entries that matched (nil for a clean message).
func (m *Moderator) Censor(message string) (string, []string) {
	if m.automaton == nil {
		return message, nil
	}
	runes := []rune(message)
	f := fold(runes)
	if len(f.runes) == 0 {
		return message, nil
	}
	hits := m.automaton.MultiPatternSearch(f.runes, false)
	if len(hits) == 0 {
		return message, nil
	}

	matched := make([]string, 0, len(hits))
	for _, hit := range hits {
		end := hit.Pos + len(hit.Word)
		if hit.Pos < 0 || end > len(f.at) {
			continue
		}
		// Noise between the first and last matched rune is masked too
		for i := f.at[hit.Pos]; i <= f.at[end-1]; i++ {
			runes[i] = m.mask
		}
		matched = append(matched, string(hit.Word))
	}
	return string(runes), matched
}

func fold(runes []rune) folded {
	f := folded{runes: make([]rune, 0, len(runes)), at: make([]int, 0, len(runes))}
	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.runes = append(f.runes, unicode.ToLower(r))
		f.at = append(f.at, i)
	}
	return f
}

func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}
