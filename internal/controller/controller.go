// internal/controller/controller.go

// Package controller is the client side of a lobby: it mirrors the host's
// snapshots, answers the UI's reads from the mirror, and turns user intents
// into actions sent over the replication channel. The mirror is replaced
// wholesale on every state message, never patched.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/nvannier/fictionary/internal/channel"
	"github.com/nvannier/fictionary/internal/game"
	"github.com/nvannier/fictionary/internal/session"
)

var (
	// ErrNoActiveSession means reconnection was requested with no stored token.
	ErrNoActiveSession = errors.New("no active session to reconnect")

	// ErrDisconnected means the channel to the host dropped.
	ErrDisconnected = errors.New("disconnected from host")
)

// requestTimeout bounds how long an action waits for its ack.
const requestTimeout = 5 * time.Second

// heartbeatInterval paces the liveness probes keeping NAT bindings and idle
// detection happy on long phases.
const heartbeatInterval = 20 * time.Second

// expiryGrace delays the local expiry trigger slightly past the host's
// deadline, so the whole-second TimeLeft rounding never fires early.
const expiryGrace = 500 * time.Millisecond

// Controller mirrors one lobby for one participant.
type Controller struct {
	ch       channel.ClientChannel
	sessions *session.Store
	lobbyID  string

	mu       sync.Mutex
	snap     game.Snapshot
	hasState bool
	playerID string
	pending  map[string]chan channel.Ack
	timer    *time.Timer
	// expiryGen invalidates armed timers when a newer snapshot re-arms the
	// countdown, so each phase deadline triggers at most once locally.
	expiryGen int
	closed    bool

	// onUpdate, when set, is called with every fresh mirror. UIs hang their
	// re-render off this.
	onUpdate func(game.Snapshot)
}

// New attaches a controller to an open channel and starts mirroring.
// sessions may be nil when reconnect tokens need not survive the process.
func New(ch channel.ClientChannel, sessions *session.Store, lobbyID string) *Controller {
	c := &Controller{
		ch:       ch,
		sessions: sessions,
		lobbyID:  lobbyID,
		pending:  make(map[string]chan channel.Ack),
	}
	go c.recvLoop()
	go c.heartbeatLoop()
	return c
}

func (c *Controller) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for range ticker.C {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		msg, err := channel.NewMessage(channel.MessageHeartbeat, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err = c.ch.Send(ctx, msg)
		cancel()
		if err != nil {
			return
		}
	}
}

// OnUpdate registers the re-render hook. Call before joining.
func (c *Controller) OnUpdate(fn func(game.Snapshot)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Snapshot returns the latest mirrored state and whether one has arrived yet.
func (c *Controller) Snapshot() (game.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap, c.hasState
}

// PlayerID returns this participant's seat id, empty before joining.
func (c *Controller) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Close stops mirroring and drops the channel.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
	return c.ch.Close()
}

// Join requests a seat under the given nickname and stores the reconnect
// token on success.
func (c *Controller) Join(ctx context.Context, nickname string) error {
	ack, err := c.request(ctx, channel.Action{Type: channel.ActionJoinLobby, LobbyID: c.lobbyID, Nickname: nickname})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.playerID = ack.PlayerID
	c.mu.Unlock()
	if c.sessions != nil && ack.Token != "" {
		if err := c.sessions.Save(c.lobbyID, ack.Token); err != nil {
			log.WithField("lobby", c.lobbyID).Warnf("failed to persist session token: %v", err)
		}
	}
	return nil
}

// Reconnect reclaims a previous seat using the stored token. A failed
// reconnect clears the token: the next attempt starts from a clean slate.
func (c *Controller) Reconnect(ctx context.Context) error {
	if c.sessions == nil {
		return ErrNoActiveSession
	}
	token, err := c.sessions.Get(c.lobbyID)
	if errors.Is(err, session.ErrNoSession) {
		return ErrNoActiveSession
	}
	if err != nil {
		return err
	}
	ack, err := c.request(ctx, channel.Action{Type: channel.ActionReconnect, LobbyID: c.lobbyID, Token: token})
	if err != nil {
		if clearErr := c.sessions.Clear(c.lobbyID); clearErr != nil {
			log.WithField("lobby", c.lobbyID).Warnf("failed to clear stale session token: %v", clearErr)
		}
		return err
	}
	c.mu.Lock()
	c.playerID = ack.PlayerID
	c.mu.Unlock()
	return nil
}

// ResumeWithToken is Reconnect for a token obtained out of band, such as the
// one returned by lobby creation.
func (c *Controller) ResumeWithToken(ctx context.Context, token string) error {
	ack, err := c.request(ctx, channel.Action{Type: channel.ActionReconnect, LobbyID: c.lobbyID, Token: token})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.playerID = ack.PlayerID
	c.mu.Unlock()
	if c.sessions != nil {
		if err := c.sessions.Save(c.lobbyID, token); err != nil {
			log.WithField("lobby", c.lobbyID).Warnf("failed to persist session token: %v", err)
		}
	}
	return nil
}

// Leave gives the seat up for good and drops the stored token.
func (c *Controller) Leave(ctx context.Context) error {
	_, err := c.request(ctx, channel.Action{Type: channel.ActionLeaveLobby, LobbyID: c.lobbyID, PlayerID: c.PlayerID()})
	if err != nil {
		return err
	}
	if c.sessions != nil {
		if clearErr := c.sessions.Clear(c.lobbyID); clearErr != nil {
			log.WithField("lobby", c.lobbyID).Warnf("failed to clear session token: %v", clearErr)
		}
	}
	return nil
}

// Start begins the game.
func (c *Controller) Start(ctx context.Context) error {
	_, err := c.request(ctx, channel.Action{Type: channel.ActionStartGame, LobbyID: c.lobbyID, PlayerID: c.PlayerID()})
	return err
}

// Submit sends this player's fake definition for the round.
func (c *Controller) Submit(ctx context.Context, text string) error {
	_, err := c.request(ctx, channel.Action{Type: channel.ActionSubmitDefinition, LobbyID: c.lobbyID, PlayerID: c.PlayerID(), Text: text})
	return err
}

// Vote sends this player's vote for a definition.
func (c *Controller) Vote(ctx context.Context, definitionID string) error {
	_, err := c.request(ctx, channel.Action{Type: channel.ActionVoteDefinition, LobbyID: c.lobbyID, PlayerID: c.PlayerID(), DefinitionID: definitionID})
	return err
}

// RefreshState explicitly re-fetches the snapshot, for recovery after the UI
// suspects its mirror is stale.
func (c *Controller) RefreshState(ctx context.Context) (game.Snapshot, error) {
	ack, err := c.request(ctx, channel.Action{Type: channel.ActionGetState, LobbyID: c.lobbyID})
	if err != nil {
		return game.Snapshot{}, err
	}
	if ack.State == nil {
		return game.Snapshot{}, ErrDisconnected
	}
	c.applySnapshot(*ack.State)
	return *ack.State, nil
}

// request sends one action and blocks for its ack.
func (c *Controller) request(ctx context.Context, action channel.Action) (channel.Ack, error) {
	action.RequestID = uuid.NewString()
	ch := make(chan channel.Ack, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return channel.Ack{}, ErrDisconnected
	}
	c.pending[action.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, action.RequestID)
		c.mu.Unlock()
	}()

	msg, err := channel.NewMessage(channel.MessageAction, action)
	if err != nil {
		return channel.Ack{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := c.ch.Send(ctx, msg); err != nil {
		return channel.Ack{}, err
	}

	select {
	case ack := <-ch:
		if ack.Error != "" {
			return ack, errors.New(ack.Error)
		}
		if ack.State != nil {
			c.applySnapshot(*ack.State)
		}
		return ack, nil
	case <-ctx.Done():
		return channel.Ack{}, ctx.Err()
	}
}

func (c *Controller) recvLoop() {
	for msg := range c.ch.Recv() {
		switch msg.Type {
		case channel.MessageState:
			var snap game.Snapshot
			if err := unmarshalPayload(msg, &snap); err != nil {
				log.WithField("lobby", c.lobbyID).Warnf("dropping malformed snapshot: %v", err)
				continue
			}
			c.applySnapshot(snap)
		case channel.MessageAck:
			var ack channel.Ack
			if err := unmarshalPayload(msg, &ack); err != nil {
				log.WithField("lobby", c.lobbyID).Warnf("dropping malformed ack: %v", err)
				continue
			}
			c.mu.Lock()
			waiter, ok := c.pending[ack.RequestID]
			c.mu.Unlock()
			if ok {
				waiter <- ack
			}
		}
	}

	// Channel gone. Keep the last mirror for the UI; mark the controller dead
	// so further requests fail fast.
	c.mu.Lock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	c.mu.Unlock()
}

// applySnapshot replaces the mirror and rebuilds the local countdown from the
// host-computed TimeLeft. Replacing wholesale means a lost broadcast is fully
// healed by the next one.
func (c *Controller) applySnapshot(snap game.Snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.hasState = true
	c.expiryGen++
	gen := c.expiryGen
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if snap.Phase != game.PhaseLobby && snap.TimeLeft > 0 {
		d := time.Duration(snap.TimeLeft)*time.Second + expiryGrace
		c.timer = time.AfterFunc(d, func() { c.onExpiry(gen) })
	}
	onUpdate := c.onUpdate
	c.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snap)
	}
}

// onExpiry fires when the mirrored phase deadline passes without the host
// having advanced (no fresh snapshot re-armed the timer). The client asks the
// host to advance, tagging the request with the phase it observed so stale
// triggers from other clients collapse server-side. When voting expires the
// client also pushes the round totals it computed from its mirror; absolute
// values keep duplicate pushes harmless.
func (c *Controller) onExpiry(gen int) {
	c.mu.Lock()
	if c.closed || gen != c.expiryGen {
		c.mu.Unlock()
		return
	}
	snap := c.snap
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if snap.Phase == game.PhaseVoting {
		totals := game.ScoreSnapshot(snap)
		if _, err := c.request(ctx, channel.Action{Type: channel.ActionUpdateScores, LobbyID: c.lobbyID, PlayerID: c.PlayerID(), Scores: totals}); err != nil {
			log.WithField("lobby", c.lobbyID).Debugf("score push on expiry failed: %v", err)
		}
	}
	if _, err := c.request(ctx, channel.Action{Type: channel.ActionAdvancePhase, LobbyID: c.lobbyID, PlayerID: c.PlayerID(), Phase: snap.Phase}); err != nil {
		log.WithField("lobby", c.lobbyID).Debugf("phase advance on expiry failed: %v", err)
	}
}

func unmarshalPayload(msg channel.Message, v any) error {
	if msg.Payload == nil {
		return errors.New("empty payload")
	}
	return json.Unmarshal(msg.Payload, v)
}
