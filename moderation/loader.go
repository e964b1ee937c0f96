package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"talent-chat/errors"
)

//go:embed censored/*.txt
var censoredFolder embed.FS

// Dictionaries maps an ISO 639-1 language code to its censored words.
type Dictionaries map[string][]string

func (d Dictionaries) Languages() []string {
	languages := make([]string, 0, len(d))
	for lang := range d {
		languages = append(languages, lang)
	}
	return languages
}

// All returns the union of every dictionary without duplicates.
func (d Dictionaries) All() []string {
	unique := make(map[string]struct{})
	var words []string
	for _, list := range d {
		for _, w := range list {
			if _, ok := unique[w]; ok {
				continue
			}
			unique[w] = struct{}{}
			words = append(words, w)
		}
	}
	return words
}

// LoadDictionaries reads every .txt file of dir, one word per line.
// The file name is the language ("fr.txt" -> "fr").
func LoadDictionaries(fsys fs.FS, dir string) (Dictionaries, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	dictionaries := make(Dictionaries)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		lang := strings.TrimSuffix(entry.Name(), ".txt")

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		// Scanner handles \n and \r\n alike
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				dictionaries[lang] = append(dictionaries[lang], line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
	}

	if len(dictionaries) == 0 {
		return nil, fmt.Errorf("no censored words under %q: %w", dir, errors.ErrInvalidConfig)
	}
	return dictionaries, nil
}

// EmbeddedDictionaries returns the word lists shipped with the binary.
func EmbeddedDictionaries() (Dictionaries, error) {
	return LoadDictionaries(censoredFolder, "censored")
}
