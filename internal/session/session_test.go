// internal/session/session_test.go
package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	Init()

	token, err := CreateToken("AB12", "player-1")
	require.NoError(t, err)

	lobbyID, playerID, err := VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "AB12", lobbyID)
	assert.Equal(t, "player-1", playerID)
}

func TestTokenRejectedAfterKeyRotation(t *testing.T) {
	Init()
	token, err := CreateToken("AB12", "player-1")
	require.NoError(t, err)

	// A new host process has new keys; stale tokens must not verify.
	Init()
	_, _, err = VerifyToken(token)
	assert.Error(t, err)
}

func TestTokenGarbageRejected(t *testing.T) {
	Init()
	_, _, err := VerifyToken("not-a-token")
	assert.Error(t, err)
}

func TestStoreSaveGetClear(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "sessions.json"))

	_, err := s.Get("AB12")
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, s.Save("AB12", "token-a"))
	require.NoError(t, s.Save("CD34", "token-b"))

	got, err := s.Get("AB12")
	require.NoError(t, err)
	assert.Equal(t, "token-a", got)

	require.NoError(t, s.Clear("AB12"))
	_, err = s.Get("AB12")
	assert.ErrorIs(t, err, ErrNoSession)

	// Other lobbies are untouched.
	got, err = s.Get("CD34")
	require.NoError(t, err)
	assert.Equal(t, "token-b", got)
}

func TestStoreSaveOverwrites(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, s.Save("AB12", "old"))
	require.NoError(t, s.Save("AB12", "new"))

	got, err := s.Get("AB12")
	require.NoError(t, err)
	assert.Equal(t, "new", got)
}

func TestStoreClearMissingIsNoop(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "sessions.json"))
	assert.NoError(t, s.Clear("ZZ99"))
}
