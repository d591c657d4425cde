// internal/host/store_test.go
package host

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvannier/fictionary/internal/channel"
	"github.com/nvannier/fictionary/internal/game"
	"github.com/nvannier/fictionary/internal/session"
)

func TestGenerateCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, code, 4)
		for _, c := range code {
			assert.Contains(t, codeCharset, string(c))
		}
		seen[code] = true
	}
	assert.Greater(t, len(seen), 90, "codes should rarely collide")
}

func TestStoreCreateAndGet(t *testing.T) {
	s := NewStore(&hostWords{})

	created, auth, err := s.Create("alice", 3, game.LanguageEnglish)
	require.NoError(t, err)
	assert.Len(t, created.Code, 4)
	assert.NotEmpty(t, created.PlayerID)

	lobbyID, playerID, err := session.VerifyToken(created.Token)
	require.NoError(t, err)
	assert.Equal(t, created.Code, lobbyID)
	assert.Equal(t, created.PlayerID, playerID)

	got, err := s.Get(created.Code)
	require.NoError(t, err)
	assert.Same(t, auth, got)

	snap := got.Snapshot()
	assert.Equal(t, game.PhaseLobby, snap.Phase)
	assert.Equal(t, "alice's Game", snap.Name)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "alice", snap.Players[0].Nickname)
}

func TestStoreGetUnknownCode(t *testing.T) {
	s := NewStore(&hostWords{})
	_, err := s.Get("ZZ99")
	assert.ErrorIs(t, err, game.ErrLobbyNotFound)
}

func TestStoreListOrdersByCode(t *testing.T) {
	s := NewStore(&hostWords{})
	for i := 0; i < 3; i++ {
		_, _, err := s.Create("host", 2, game.LanguageEnglish)
		require.NoError(t, err)
	}
	snaps := s.List()
	require.Len(t, snaps, 3)
	assert.LessOrEqual(t, snaps[0].LobbyID, snaps[1].LobbyID)
	assert.LessOrEqual(t, snaps[1].LobbyID, snaps[2].LobbyID)
}

func TestLastPlayerLeavingTearsLobbyDown(t *testing.T) {
	s := NewStore(&hostWords{})
	created, auth, err := s.Create("alice", 2, game.LanguageEnglish)
	require.NoError(t, err)
	mt := newMockTransport()
	auth.AttachTransport(mt)

	sendAction(auth, "p0", channel.Action{Type: channel.ActionLeaveLobby, PlayerID: created.PlayerID})
	require.Empty(t, mt.lastAck(t, "p0").Error)

	assert.Eventually(t, func() bool {
		_, err := s.Get(created.Code)
		return err != nil
	}, time.Second, 10*time.Millisecond, "empty lobby should be removed from the store")
}

func TestLeaveWithPlayersRemainingKeepsLobby(t *testing.T) {
	s := NewStore(&hostWords{})
	created, auth, err := s.Create("alice", 2, game.LanguageEnglish)
	require.NoError(t, err)
	mt := newMockTransport()
	auth.AttachTransport(mt)

	sendAction(auth, "p1", channel.Action{Type: channel.ActionJoinLobby, Nickname: "bob"})
	sendAction(auth, "p0", channel.Action{Type: channel.ActionLeaveLobby, PlayerID: created.PlayerID})

	snap := mt.lastState(t)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "bob", snap.Players[0].Nickname)

	_, err = s.Get(created.Code)
	assert.NoError(t, err)
}
