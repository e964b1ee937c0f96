package moderation

import (
	"testing"
	"testing/fstest"

	"talent-chat/errors"

	"github.com/stretchr/testify/require"
)

func TestLoadDictionaries(t *testing.T) {
	req := require.New(t)

	// Given one file per language, with blank lines, comments and CRLF endings
	fsys := fstest.MapFS{
		"words/en.txt":    {Data: []byte("badger\r\n\r\n# animals\nsnake\n")},
		"words/fr.txt":    {Data: []byte("blaireau\n")},
		"words/README.md": {Data: []byte("not a dictionary")},
	}

	// When loading the folder
	dictionaries, err := LoadDictionaries(fsys, "words")

	// Then each language has its words
	req.NoError(err)
	req.Equal([]string{"badger", "snake"}, dictionaries["en"])
	req.Equal([]string{"blaireau"}, dictionaries["fr"])
	req.ElementsMatch([]string{"en", "fr"}, dictionaries.Languages())
	req.ElementsMatch([]string{"badger", "snake", "blaireau"}, dictionaries.All())
}

func TestLoadDictionaries_Empty(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{"words/en.txt": {Data: []byte("\n\n")}}

	_, err := LoadDictionaries(fsys, "words")

	req.ErrorIs(err, errors.ErrInvalidConfig)
}

func TestEmbeddedDictionaries(t *testing.T) {
	req := require.New(t)

	dictionaries, err := EmbeddedDictionaries()

	req.NoError(err)
	req.Contains(dictionaries.Languages(), "en")
	req.Contains(dictionaries.Languages(), "fr")
	req.NotEmpty(dictionaries["en"])
}
