// internal/host/authority.go

// Package host runs the authoritative side of a lobby: exactly one process
// owns the lobby state, applies actions one at a time, and fans the resulting
// snapshot out to every connected client.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nvannier/fictionary/internal/archive"
	"github.com/nvannier/fictionary/internal/channel"
	"github.com/nvannier/fictionary/internal/game"
	"github.com/nvannier/fictionary/internal/session"
)

// Authority is the single writer for one lobby. Transports call its
// PeerHandler methods from their read loops; the mutex serializes every
// mutation, so actions apply in a total order no matter which transport they
// arrived on.
type Authority struct {
	mu    sync.Mutex
	lobby *game.Lobby
	words game.WordSource

	transports []channel.HostTransport
	peers      map[string]string // peer id -> player id, set on join/reconnect

	// onEmpty fires once after the last seat empties, outside the lock.
	onEmpty func(lobbyID string)

	now         func() time.Time
	actionIndex int
	closed      bool
}

// NewAuthority wraps a lobby. Attach transports before serving peers.
func NewAuthority(lobby *game.Lobby, words game.WordSource) *Authority {
	return &Authority{
		lobby: lobby,
		words: words,
		peers: make(map[string]string),
		now:   time.Now,
	}
}

// AttachTransport adds a transport whose peers this authority serves. The
// host's own controller attaches through an in-process loopback; remote
// players through websocket or shared-store transports.
func (a *Authority) AttachTransport(t channel.HostTransport) {
	a.mu.Lock()
	a.transports = append(a.transports, t)
	a.mu.Unlock()
}

// SetOnEmpty registers the teardown hook invoked when the last player leaves.
func (a *Authority) SetOnEmpty(fn func(lobbyID string)) {
	a.mu.Lock()
	a.onEmpty = fn
	a.mu.Unlock()
}

// LobbyID returns the lobby's join code.
func (a *Authority) LobbyID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lobby.ID
}

// Snapshot returns the current broadcast view of the lobby.
func (a *Authority) Snapshot() game.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lobby.Snapshot(a.now())
}

// Close shuts down every attached transport.
func (a *Authority) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	transports := append([]channel.HostTransport(nil), a.transports...)
	a.mu.Unlock()
	for _, t := range transports {
		t.Close()
	}
	return nil
}

// PeerConnected pushes the current snapshot to the new peer so it has state
// to render before its first action is acked.
func (a *Authority) PeerConnected(peerID string) {
	snap := a.Snapshot()
	msg, err := channel.NewMessage(channel.MessageState, snap)
	if err != nil {
		return
	}
	a.sendTo(peerID, msg)
}

// PeerDisconnected marks the peer's player as disconnected. The seat and the
// score survive: only an explicit leaveLobby removes a player.
func (a *Authority) PeerDisconnected(peerID string) {
	a.mu.Lock()
	playerID, ok := a.peers[peerID]
	delete(a.peers, peerID)
	var changed bool
	if ok {
		changed = a.lobby.SetConnected(playerID, false) == nil
	}
	a.mu.Unlock()
	if changed {
		log.WithFields(log.Fields{"lobby": a.LobbyID(), "player": playerID}).Info("player disconnected")
		a.broadcastState()
	}
}

// HandleMessage applies one client action and answers it with an ack. Every
// successful mutation is followed by a full-state broadcast; failed actions
// are acked with the error and broadcast nothing.
func (a *Authority) HandleMessage(peerID string, msg channel.Message) {
	if msg.Type != channel.MessageAction {
		return
	}
	var action channel.Action
	if err := json.Unmarshal(msg.Payload, &action); err != nil {
		log.WithField("peer", peerID).Warnf("dropping malformed action: %v", err)
		return
	}

	ack, mutated := a.apply(peerID, action)
	ack.RequestID = action.RequestID

	ackMsg, err := channel.NewMessage(channel.MessageAck, ack)
	if err == nil {
		a.sendTo(peerID, ackMsg)
	}
	if mutated {
		a.broadcastState()
		a.record(action, ack)
	}
}

// apply runs one action against the lobby under the lock. It returns the ack
// and whether state changed.
func (a *Authority) apply(peerID string, action channel.Action) (channel.Ack, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx := context.Background()
	now := a.now()
	l := a.lobby

	fail := func(err error) (channel.Ack, bool) {
		snap := l.Snapshot(now)
		return channel.Ack{Error: err.Error(), LobbyID: l.ID, State: &snap}, false
	}
	ok := func(ack channel.Ack) (channel.Ack, bool) {
		snap := l.Snapshot(now)
		ack.LobbyID = l.ID
		ack.State = &snap
		return ack, true
	}

	switch action.Type {
	case channel.ActionJoinLobby:
		player, err := l.AddPlayer(action.Nickname)
		if err != nil {
			return fail(err)
		}
		token, err := session.CreateToken(l.ID, player.ID)
		if err != nil {
			return fail(err)
		}
		a.peers[peerID] = player.ID
		log.WithFields(log.Fields{"lobby": l.ID, "player": player.ID, "nickname": player.Nickname}).Info("player joined")
		return ok(channel.Ack{PlayerID: player.ID, Token: token})

	case channel.ActionReconnect:
		lobbyID, playerID, err := session.VerifyToken(action.Token)
		if err != nil || lobbyID != l.ID {
			return fail(game.ErrPlayerNotFound)
		}
		if err := l.SetConnected(playerID, true); err != nil {
			return fail(err)
		}
		a.peers[peerID] = playerID
		log.WithFields(log.Fields{"lobby": l.ID, "player": playerID}).Info("player reconnected")
		return ok(channel.Ack{PlayerID: playerID})

	case channel.ActionLeaveLobby:
		empty, err := l.RemovePlayer(action.PlayerID)
		if err != nil {
			return fail(err)
		}
		delete(a.peers, peerID)
		if empty && a.onEmpty != nil {
			go a.onEmpty(l.ID)
		}
		return ok(channel.Ack{})

	case channel.ActionStartGame:
		if err := l.StartGame(ctx, a.words, now); err != nil {
			return fail(err)
		}
		log.WithFields(log.Fields{"lobby": l.ID, "word": l.CurrentWord}).Info("game started")
		return ok(channel.Ack{})

	case channel.ActionSubmitDefinition:
		if err := l.SubmitDefinition(action.PlayerID, action.Text); err != nil {
			return fail(err)
		}
		if l.AllSubmitted() {
			if err := l.AdvancePhase(ctx, a.words, now); err != nil {
				log.WithField("lobby", l.ID).Errorf("early advance failed: %v", err)
			}
		}
		return ok(channel.Ack{})

	case channel.ActionVoteDefinition:
		if err := l.VoteDefinition(action.PlayerID, action.DefinitionID); err != nil {
			return fail(err)
		}
		if l.AllVoted() {
			// Everyone has voted; score and reveal without waiting for the timer.
			l.ApplyRoundScores()
			if err := l.AdvancePhase(ctx, a.words, now); err != nil {
				log.WithField("lobby", l.ID).Errorf("early advance failed: %v", err)
			}
		}
		return ok(channel.Ack{})

	case channel.ActionAdvancePhase:
		// Stale requests (observed phase already left behind) collapse into a
		// no-op, so several clients noticing the same expiry advance once.
		if action.Phase != "" && action.Phase != l.Phase {
			return ok(channel.Ack{})
		}
		if l.Phase == game.PhaseLobby {
			return fail(game.ErrWrongPhase)
		}
		if err := l.AdvancePhase(ctx, a.words, now); err != nil {
			return fail(err)
		}
		return ok(channel.Ack{})

	case channel.ActionUpdateScores:
		// Scores arrive as absolute totals computed from a snapshot, so
		// duplicates are idempotent. Only meaningful once voting is underway.
		if l.Phase != game.PhaseVoting && l.Phase != game.PhaseResults {
			return fail(game.ErrWrongPhase)
		}
		l.SetScores(action.Scores)
		return ok(channel.Ack{})

	case channel.ActionGetState:
		snap := l.Snapshot(now)
		return channel.Ack{LobbyID: l.ID, State: &snap}, false

	case channel.ActionDisconnect:
		if err := l.SetConnected(action.PlayerID, false); err != nil {
			return fail(err)
		}
		delete(a.peers, peerID)
		return ok(channel.Ack{})

	default:
		return fail(errors.New("unknown action type: " + string(action.Type)))
	}
}

func (a *Authority) broadcastState() {
	snap := a.Snapshot()
	msg, err := channel.NewMessage(channel.MessageState, snap)
	if err != nil {
		log.WithField("lobby", snap.LobbyID).Errorf("failed to build state message: %v", err)
		return
	}
	a.mu.Lock()
	transports := append([]channel.HostTransport(nil), a.transports...)
	a.mu.Unlock()
	for _, t := range transports {
		if err := t.Broadcast(context.Background(), msg); err != nil && !errors.Is(err, channel.ErrChannelClosed) {
			log.WithField("lobby", snap.LobbyID).Warnf("broadcast failed: %v", err)
		}
	}
}

func (a *Authority) sendTo(peerID string, msg channel.Message) {
	a.mu.Lock()
	transports := append([]channel.HostTransport(nil), a.transports...)
	a.mu.Unlock()
	for _, t := range transports {
		if err := t.SendTo(context.Background(), peerID, msg); err == nil {
			return
		}
	}
}

// record queues the applied action for the historian. Best effort.
func (a *Authority) record(action channel.Action, ack channel.Ack) {
	a.mu.Lock()
	a.actionIndex++
	idx := a.actionIndex
	lobbyID := a.lobby.ID
	a.mu.Unlock()

	actor := action.PlayerID
	if actor == "" {
		actor = ack.PlayerID
	}
	payload := map[string]interface{}{}
	if action.Text != "" {
		payload["text"] = action.Text
	}
	if action.DefinitionID != "" {
		payload["definitionId"] = action.DefinitionID
	}
	if action.Nickname != "" {
		payload["nickname"] = action.Nickname
	}
	rec := archive.ActionRecord{
		LobbyID:       lobbyID,
		ActionIndex:   idx,
		ActorID:       actor,
		ActionType:    string(action.Type),
		ActionPayload: payload,
		Timestamp:     a.now().UnixMilli(),
	}
	if err := archive.PublishAction(context.Background(), rec); err != nil {
		log.WithField("lobby", lobbyID).Debugf("failed to archive action: %v", err)
	}
}
