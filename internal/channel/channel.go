// internal/channel/channel.go

// Package channel defines the transport-agnostic replication contract between
// the host authority and its clients, plus the conforming transports. The host
// fans full-state snapshots out; clients send action requests in. Delivery is
// best effort: the core never assumes a message arrived, and a lost snapshot
// is healed by the next one.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nvannier/fictionary/internal/game"
)

// Transport-level errors, distinct from game validation errors.
var (
	ErrPeerUnavailable = errors.New("peer unavailable")
	ErrChannelClosed   = errors.New("channel closed")
)

// MessageType discriminates the wire envelope.
type MessageType string

const (
	// MessageAction carries an Action payload, client -> host.
	MessageAction MessageType = "action"
	// MessageState carries a game.Snapshot payload, host -> all clients.
	MessageState MessageType = "state"
	// MessageAck carries an Ack payload, host -> the requesting client.
	MessageAck MessageType = "ack"
	// MessageHeartbeat is a liveness probe; the host echoes it back.
	MessageHeartbeat MessageType = "heartbeat"
)

// Message is the wire envelope exchanged over every transport.
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewMessage wraps a payload into an envelope stamped with the current time.
func NewMessage(t MessageType, payload any) (Message, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		raw = data
	}
	return Message{Type: t, Payload: raw, Timestamp: time.Now().UnixMilli()}, nil
}

// ActionType names one operation of the public action surface.
type ActionType string

const (
	ActionJoinLobby        ActionType = "joinLobby"
	ActionLeaveLobby       ActionType = "leaveLobby"
	ActionStartGame        ActionType = "startGame"
	ActionSubmitDefinition ActionType = "submitDefinition"
	ActionVoteDefinition   ActionType = "voteDefinition"
	ActionAdvancePhase     ActionType = "advancePhase"
	ActionUpdateScores     ActionType = "updateScores"
	ActionGetState         ActionType = "getGameState"
	ActionReconnect        ActionType = "reconnect"
	ActionDisconnect       ActionType = "disconnect"
)

// Action is the payload of a MessageAction envelope. Fields beyond Type are
// populated per operation; zero values are omitted on the wire.
type Action struct {
	Type      ActionType `json:"type"`
	RequestID string     `json:"requestId,omitempty"`
	LobbyID   string     `json:"lobbyId,omitempty"`
	PlayerID  string     `json:"playerId,omitempty"`
	Nickname  string     `json:"nickname,omitempty"`

	// Text carries a submitted definition; DefinitionID a vote target.
	Text         string `json:"text,omitempty"`
	DefinitionID string `json:"definitionId,omitempty"`

	// Phase is the phase the sender observed when requesting advancePhase.
	// The host ignores the request if the lobby has already moved on, which
	// makes concurrent expiry triggers from multiple clients collapse into one
	// transition.
	Phase game.Phase `json:"phase,omitempty"`

	// Scores holds absolute totals by player id for updateScores. Absolute
	// values keep duplicate pushes computed from the same snapshot idempotent.
	Scores map[string]int `json:"scores,omitempty"`

	// Token is a signed reconnect token for reconnect requests.
	Token string `json:"token,omitempty"`
}

// Ack is the payload of a MessageAck envelope, answering exactly one Action.
type Ack struct {
	RequestID string         `json:"requestId,omitempty"`
	Error     string         `json:"error,omitempty"`
	PlayerID  string         `json:"playerId,omitempty"`
	LobbyID   string         `json:"lobbyId,omitempty"`
	Token     string         `json:"token,omitempty"`
	State     *game.Snapshot `json:"state,omitempty"`
}

// ClientChannel is the client end of a replication channel. Recv yields
// snapshots, acks and heartbeat echoes in per-sender order; it is closed when
// the transport drops, which the controller treats as a disconnect.
type ClientChannel interface {
	Send(ctx context.Context, msg Message) error
	Recv() <-chan Message
	Close() error
}

// PeerHandler consumes transport events on the host side. The host authority
// implements it; transports invoke it from their read loops, one call at a
// time per peer.
type PeerHandler interface {
	HandleMessage(peerID string, msg Message)
	PeerConnected(peerID string)
	PeerDisconnected(peerID string)
}

// HostTransport is the host end of a replication channel. An authority may
// have several attached at once (in-process loopback for the host's own
// controller plus a networked transport for remote players).
type HostTransport interface {
	Broadcast(ctx context.Context, msg Message) error
	SendTo(ctx context.Context, peerID string, msg Message) error
	Close() error
}
