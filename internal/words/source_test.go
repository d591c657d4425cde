// internal/words/source_test.go
package words

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvannier/fictionary/internal/game"
)

func TestGetWordExcludesUsed(t *testing.T) {
	dir := t.TempDir()
	list := `[{"word":"alpha","definition":"first"},{"word":"beta","definition":"second"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte(list), 0o644))

	s := NewSimpleSource(dir)
	word, def, err := s.GetWord(context.Background(), game.LanguageEnglish, []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, "beta", word)
	assert.Equal(t, "second", def)
}

func TestGetWordFallsBackWhenExhausted(t *testing.T) {
	dir := t.TempDir()
	list := `[{"word":"alpha","definition":"first"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte(list), 0o644))

	s := NewSimpleSource(dir)
	word, _, err := s.GetWord(context.Background(), game.LanguageEnglish, []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, "alpha", word, "exhausted list repeats a used word rather than failing")
}

func TestGetWordUnknownLanguage(t *testing.T) {
	s := NewSimpleSource(t.TempDir())
	_, _, err := s.GetWord(context.Background(), game.Language("xx"), nil)
	assert.ErrorIs(t, err, ErrNoWords)
}

func TestEmbeddedListsLoad(t *testing.T) {
	s := NewSimpleSource("")
	require.NoError(t, s.Preload(game.LanguageEnglish))
	require.NoError(t, s.Preload(game.LanguageFrench))

	word, def, err := s.GetWord(context.Background(), game.LanguageFrench, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, word)
	assert.NotEmpty(t, def)
}

func TestListIsCachedAfterFirstLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "en.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"word":"alpha","definition":"first"}]`), 0o644))

	s := NewSimpleSource(dir)
	require.NoError(t, s.Preload(game.LanguageEnglish))
	require.NoError(t, os.Remove(path))

	word, _, err := s.GetWord(context.Background(), game.LanguageEnglish, nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", word)
}
