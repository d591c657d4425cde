// internal/words/source.go

// Package words supplies the word/true-definition pairs a lobby plays with.
// Lists are plain JSON arrays of {word, definition} objects, one file per
// language, loaded once and cached for the life of the process.
package words

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nvannier/fictionary/internal/game"
)

//go:embed data/*.json
var defaultLists embed.FS

// ErrNoWords indicates a language has no word list at all. Exhausting the
// unused words is not an error; see GetWord's fallback.
var ErrNoWords = errors.New("no words available for language")

// Entry is one playable word with its true definition.
type Entry struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
}

// SimpleSource implements game.WordSource backed by embedded word lists, with
// an optional directory override (WORDS_DIR) for custom lists. The per-language
// cache is read-shared across rounds; loading is serialized by the mutex.
type SimpleSource struct {
	mu    sync.Mutex
	dir   string
	cache map[game.Language][]Entry
	rand  *rand.Rand
}

// NewSimpleSource builds a source reading from dir when non-empty, falling
// back to the embedded lists.
func NewSimpleSource(dir string) *SimpleSource {
	return &SimpleSource{
		dir:   dir,
		cache: make(map[game.Language][]Entry),
		rand:  rand.New(rand.NewSource(rand.Int63())),
	}
}

// GetWord returns a random entry for the language, excluding usedWords. When
// every word has been used it deliberately returns a random already-used word
// instead of failing, so a long game stays playable.
func (s *SimpleSource) GetWord(_ context.Context, language game.Language, usedWords []string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.loadLocked(language)
	if err != nil {
		return "", "", err
	}

	used := make(map[string]bool, len(usedWords))
	for _, w := range usedWords {
		used[w] = true
	}
	available := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !used[e.Word] {
			available = append(available, e)
		}
	}
	if len(available) == 0 {
		// Fallback policy: repeat rather than error once the list is exhausted.
		log.WithField("language", language).Warn("word list exhausted, repeating a used word")
		available = entries
	}
	e := available[s.rand.Intn(len(available))]
	return e.Word, e.Definition, nil
}

// Preload warms the cache for a language so the first round doesn't pay the
// load cost.
func (s *SimpleSource) Preload(language game.Language) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.loadLocked(language)
	return err
}

func (s *SimpleSource) loadLocked(language game.Language) ([]Entry, error) {
	if entries, ok := s.cache[language]; ok {
		return entries, nil
	}

	var data []byte
	var err error
	if s.dir != "" {
		data, err = os.ReadFile(filepath.Join(s.dir, string(language)+".json"))
	} else {
		data, err = defaultLists.ReadFile("data/" + string(language) + ".json")
	}
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrNoWords, language, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("invalid word list for %q: %w", language, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w %q: empty list", ErrNoWords, language)
	}

	s.cache[language] = entries
	log.WithFields(log.Fields{"language": language, "count": len(entries)}).Debug("loaded word list")
	return entries, nil
}
