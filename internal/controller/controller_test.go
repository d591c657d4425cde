// internal/controller/controller_test.go
package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvannier/fictionary/internal/channel"
	"github.com/nvannier/fictionary/internal/game"
	"github.com/nvannier/fictionary/internal/host"
	"github.com/nvannier/fictionary/internal/session"
)

func TestMain(m *testing.M) {
	session.Init()
	m.Run()
}

type stubWords struct{ calls int }

func (s *stubWords) GetWord(_ context.Context, _ game.Language, _ []string) (string, string, error) {
	s.calls++
	return fmt.Sprintf("word%d", s.calls), fmt.Sprintf("definition%d", s.calls), nil
}

type testEnv struct {
	auth  *host.Authority
	mem   *channel.MemoryHost
	code  string
	token string // creator's reconnect token
}

// newEnv hosts a lobby with "alice" seated as creator and the given timing.
func newEnv(t *testing.T, timing game.Timing) *testEnv {
	t.Helper()
	lobby, creator := game.NewLobby("AB12", "alice", 2, game.LanguageEnglish)
	lobby.Timing = timing
	token, err := session.CreateToken(lobby.ID, creator.ID)
	require.NoError(t, err)

	auth := host.NewAuthority(lobby, &stubWords{})
	mem := channel.NewMemoryHost(auth)
	auth.AttachTransport(mem)
	t.Cleanup(func() { auth.Close() })
	return &testEnv{auth: auth, mem: mem, code: lobby.ID, token: token}
}

func (e *testEnv) connect(sessions *session.Store) *Controller {
	ch := e.mem.Connect("peer-" + uuid.NewString())
	return New(ch, sessions, e.code)
}

func newSessionStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(filepath.Join(t.TempDir(), "sessions.json"))
}

func waitForPhase(t *testing.T, c *Controller, phase game.Phase) game.Snapshot {
	t.Helper()
	var snap game.Snapshot
	require.Eventually(t, func() bool {
		s, ok := c.Snapshot()
		if ok && s.Phase == phase {
			snap = s
			return true
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "mirror never reached phase %s", phase)
	return snap
}

func TestJoinMirrorsStateAndStoresToken(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	sessions := newSessionStore(t)
	ctx := context.Background()

	bob := env.connect(sessions)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))

	assert.NotEmpty(t, bob.PlayerID())
	snap, ok := bob.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "AB12", snap.LobbyID)
	assert.Len(t, snap.Players, 2)

	token, err := sessions.Get("AB12")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestJoinDuplicateNicknameSurfacesError(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	ctx := context.Background()

	bob := env.connect(nil)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))

	imposter := env.connect(nil)
	defer imposter.Close()
	err := imposter.Join(ctx, "bob")
	require.Error(t, err)
	assert.Equal(t, game.ErrNicknameTaken.Error(), err.Error())
}

func TestFullGameFlowOverMemoryChannel(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	ctx := context.Background()

	alice := env.connect(nil)
	defer alice.Close()
	require.NoError(t, alice.ResumeWithToken(ctx, env.token))

	bob := env.connect(nil)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))

	require.NoError(t, alice.Start(ctx))
	snap := waitForPhase(t, bob, game.PhaseDefinition)
	assert.Equal(t, "word1", snap.CurrentWord)
	assert.Greater(t, snap.TimeLeft, 0)

	require.NoError(t, alice.Submit(ctx, "a plausible lie"))
	require.NoError(t, bob.Submit(ctx, "another plausible lie"))
	snap = waitForPhase(t, alice, game.PhaseVoting)
	require.Len(t, snap.Definitions, 3)

	var correctID, aliceFake string
	for _, d := range snap.Definitions {
		switch {
		case d.IsCorrect:
			correctID = d.ID
		case d.PlayerID == alice.PlayerID():
			aliceFake = d.ID
		}
	}

	require.NoError(t, alice.Vote(ctx, correctID))
	require.NoError(t, bob.Vote(ctx, aliceFake))

	snap = waitForPhase(t, bob, game.PhaseResults)
	for _, p := range snap.Players {
		switch p.ID {
		case alice.PlayerID():
			assert.Equal(t, 2, p.Score, "correct guess plus one fooled voter")
		case bob.PlayerID():
			assert.Equal(t, 0, p.Score)
		}
	}
}

func TestDefinitionExpiryAdvancesViaClientTimer(t *testing.T) {
	env := newEnv(t, game.Timing{Definition: 1100 * time.Millisecond, Voting: time.Minute, Results: time.Minute})
	ctx := context.Background()

	alice := env.connect(nil)
	defer alice.Close()
	require.NoError(t, alice.ResumeWithToken(ctx, env.token))
	bob := env.connect(nil)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))

	require.NoError(t, alice.Start(ctx))
	waitForPhase(t, alice, game.PhaseDefinition)

	// Nobody submits. Both controllers observe the deadline; the host
	// collapses their concurrent advance requests into one transition.
	waitForPhase(t, alice, game.PhaseVoting)
	waitForPhase(t, bob, game.PhaseVoting)
}

func TestVotingExpiryPushesScoresThenAdvances(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	ctx := context.Background()

	alice := env.connect(nil)
	defer alice.Close()
	require.NoError(t, alice.ResumeWithToken(ctx, env.token))
	bob := env.connect(nil)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))

	require.NoError(t, alice.Start(ctx))
	require.NoError(t, alice.Submit(ctx, "a plausible lie"))
	require.NoError(t, bob.Submit(ctx, "another plausible lie"))
	snap := waitForPhase(t, alice, game.PhaseVoting)

	var correctID string
	for _, d := range snap.Definitions {
		if d.IsCorrect {
			correctID = d.ID
		}
	}
	// Only alice votes; bob forfeits. Fire alice's expiry path directly
	// instead of waiting out the clock.
	require.NoError(t, alice.Vote(ctx, correctID))

	alice.mu.Lock()
	gen := alice.expiryGen
	alice.mu.Unlock()
	alice.onExpiry(gen)

	snap = waitForPhase(t, bob, game.PhaseResults)
	for _, p := range snap.Players {
		switch p.ID {
		case alice.PlayerID():
			assert.Equal(t, 1, p.Score)
		case bob.PlayerID():
			assert.Equal(t, 0, p.Score)
		}
	}
}

func TestStaleExpiryGenerationIsIgnored(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	ctx := context.Background()

	alice := env.connect(nil)
	defer alice.Close()
	require.NoError(t, alice.ResumeWithToken(ctx, env.token))
	bob := env.connect(nil)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))

	require.NoError(t, alice.Start(ctx))
	waitForPhase(t, alice, game.PhaseDefinition)

	alice.mu.Lock()
	gen := alice.expiryGen
	alice.mu.Unlock()

	// A fresh snapshot (any applied action) re-arms the countdown; the old
	// generation must no longer trigger an advance.
	require.NoError(t, alice.Submit(ctx, "a plausible lie"))
	alice.onExpiry(gen)

	snap, _ := alice.Snapshot()
	assert.Equal(t, game.PhaseDefinition, snap.Phase)
}

func TestReconnectReclaimsSeatAcrossControllers(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	sessions := newSessionStore(t)
	ctx := context.Background()

	bob := env.connect(sessions)
	require.NoError(t, bob.Join(ctx, "bob"))
	bobID := bob.PlayerID()
	require.NoError(t, bob.Close())

	revenant := env.connect(sessions)
	defer revenant.Close()
	require.NoError(t, revenant.Reconnect(ctx))
	assert.Equal(t, bobID, revenant.PlayerID(), "reconnect must reclaim the same seat")
}

func TestReconnectWithoutSessionFails(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	c := env.connect(newSessionStore(t))
	defer c.Close()
	err := c.Reconnect(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestFailedReconnectClearsToken(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	sessions := newSessionStore(t)
	require.NoError(t, sessions.Save("AB12", "stale-garbage-token"))

	c := env.connect(sessions)
	defer c.Close()
	require.Error(t, c.Reconnect(context.Background()))

	_, err := sessions.Get("AB12")
	assert.ErrorIs(t, err, session.ErrNoSession, "failed reconnect must clear the stored token")

	// Second attempt now reports no session at all.
	err = c.Reconnect(context.Background())
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestLeaveClearsStoredToken(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	sessions := newSessionStore(t)
	ctx := context.Background()

	bob := env.connect(sessions)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))
	require.NoError(t, bob.Leave(ctx))

	_, err := sessions.Get("AB12")
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestRefreshStateRepairsMirror(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	ctx := context.Background()

	bob := env.connect(nil)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))

	snap, err := bob.RefreshState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "AB12", snap.LobbyID)
	assert.Len(t, snap.Players, 2)
}

func TestRequestAfterCloseFailsFast(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	bob := env.connect(nil)
	require.NoError(t, bob.Join(context.Background(), "bob"))
	require.NoError(t, bob.Close())

	require.Eventually(t, func() bool {
		return bob.Submit(context.Background(), "too late") != nil
	}, time.Second, 10*time.Millisecond)
}

func TestOnUpdateFiresPerSnapshot(t *testing.T) {
	env := newEnv(t, game.DefaultTiming)
	ctx := context.Background()

	bob := env.connect(nil)
	defer bob.Close()
	updates := make(chan game.Snapshot, 16)
	bob.OnUpdate(func(s game.Snapshot) { updates <- s })

	require.NoError(t, bob.Join(ctx, "bob"))

	select {
	case snap := <-updates:
		assert.Equal(t, "AB12", snap.LobbyID)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}
