// internal/handlers/lobby_test.go
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvannier/fictionary/internal/channel"
	"github.com/nvannier/fictionary/internal/controller"
	"github.com/nvannier/fictionary/internal/game"
	"github.com/nvannier/fictionary/internal/host"
	"github.com/nvannier/fictionary/internal/session"
	"github.com/nvannier/fictionary/internal/words"
)

func TestMain(m *testing.M) {
	session.Init()
	m.Run()
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store := host.NewStore(words.NewSimpleSource(""))
	srv := NewServer(logger, store, nil)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	t.Cleanup(store.Close)
	return srv, ts
}

func createLobby(t *testing.T, ts *httptest.Server, body string) (host.Created, *http.Response) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/lobbies", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var created host.Created
	if resp.StatusCode == http.StatusCreated {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	}
	return created, resp
}

func TestCreateLobby(t *testing.T) {
	_, ts := newTestServer(t)

	created, resp := createLobby(t, ts, `{"nickname":"alice","rounds":3,"language":"en"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, created.Code, 4)
	assert.NotEmpty(t, created.PlayerID)

	lobbyID, playerID, err := session.VerifyToken(created.Token)
	require.NoError(t, err)
	assert.Equal(t, created.Code, lobbyID)
	assert.Equal(t, created.PlayerID, playerID)
}

func TestCreateLobbyValidation(t *testing.T) {
	_, ts := newTestServer(t)

	for name, body := range map[string]string{
		"empty body":       ``,
		"missing nickname": `{"rounds":3}`,
		"blank nickname":   `{"nickname":"   "}`,
		"bad language":     `{"nickname":"alice","language":"de"}`,
	} {
		_, resp := createLobby(t, ts, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestListLobbies(t *testing.T) {
	_, ts := newTestServer(t)
	created, _ := createLobby(t, ts, `{"nickname":"alice","language":"fr"}`)

	resp, err := http.Get(ts.URL + "/lobbies")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summaries []lobbySummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, created.Code, summaries[0].Code)
	assert.Equal(t, "alice's Game", summaries[0].Name)
	assert.Equal(t, "fr", summaries[0].Language)
	assert.Equal(t, 1, summaries[0].PlayerCount)
	assert.True(t, summaries[0].Joinable)
}

func TestWSUnknownLobby(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/ws/ZZ99")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func wsURL(ts *httptest.Server, code string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + code
}

func TestGameOverWebsocket(t *testing.T) {
	_, ts := newTestServer(t)
	created, _ := createLobby(t, ts, `{"nickname":"alice"}`)
	ctx := context.Background()

	aliceCh, err := channel.DialWS(ctx, wsURL(ts, created.Code))
	require.NoError(t, err)
	alice := controller.New(aliceCh, nil, created.Code)
	defer alice.Close()
	require.NoError(t, alice.ResumeWithToken(ctx, created.Token))
	assert.Equal(t, created.PlayerID, alice.PlayerID())

	bobCh, err := channel.DialWS(ctx, wsURL(ts, created.Code))
	require.NoError(t, err)
	bob := controller.New(bobCh, nil, created.Code)
	defer bob.Close()
	require.NoError(t, bob.Join(ctx, "bob"))

	require.NoError(t, alice.Start(ctx))
	require.Eventually(t, func() bool {
		snap, ok := bob.Snapshot()
		return ok && snap.Phase == game.PhaseDefinition
	}, 5*time.Second, 10*time.Millisecond)

	snap, _ := bob.Snapshot()
	assert.NotEmpty(t, snap.CurrentWord)
	assert.Len(t, snap.Players, 2)
}

func TestWSDisconnectMarksPlayerDisconnected(t *testing.T) {
	srv, ts := newTestServer(t)
	created, _ := createLobby(t, ts, `{"nickname":"alice"}`)
	ctx := context.Background()

	bobCh, err := channel.DialWS(ctx, wsURL(ts, created.Code))
	require.NoError(t, err)
	bob := controller.New(bobCh, nil, created.Code)
	require.NoError(t, bob.Join(ctx, "bob"))
	bobID := bob.PlayerID()
	require.NoError(t, bob.Close())

	auth, err := srv.store.Get(created.Code)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for _, p := range auth.Snapshot().Players {
			if p.ID == bobID {
				return !p.Connected
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "transport drop must mark the seat disconnected")
}
