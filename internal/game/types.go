// internal/game/types.go
package game

import "time"

// Phase is the coarse position of a lobby in the game state machine.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseDefinition Phase = "definition"
	PhaseVoting     Phase = "voting"
	PhaseResults    Phase = "results"
)

// Language selects which word list a lobby draws from. Fixed at creation.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
)

// SystemPlayerID is the synthetic author of the true definition seeded each round.
const SystemPlayerID = "system"

const (
	// MinPlayers is the minimum number of players required to start a game.
	MinPlayers = 2

	// MinRounds and MaxRounds bound totalRounds; out-of-range values are clamped.
	MinRounds = 2
	MaxRounds = 10
)

// Timing holds the fixed per-phase durations. Lobbies are created with
// DefaultTiming; tests shorten these to exercise expiry paths.
type Timing struct {
	Definition time.Duration
	Voting     time.Duration
	Results    time.Duration
}

// DefaultTiming matches the durations players see in a real game.
var DefaultTiming = Timing{
	Definition: 120 * time.Second,
	Voting:     120 * time.Second,
	Results:    15 * time.Second,
}

// Player is one seat in a lobby. ID is immutable once assigned; Connected
// tracks transport liveness and never affects the seat or the score.
type Player struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// Definition is a candidate meaning for the round's word, either authored by a
// player or seeded by the system (IsCorrect == true).
type Definition struct {
	ID        string   `json:"id"`
	PlayerID  string   `json:"playerId"`
	Text      string   `json:"text"`
	Votes     []string `json:"votes"`
	IsCorrect bool     `json:"isCorrect"`
}

// Vote records a single player's pick for the round.
type Vote struct {
	PlayerID     string `json:"playerId"`
	DefinitionID string `json:"definitionId"`
}

// Lobby is the single source of truth for one game session. It is owned
// exclusively by the host process; clients only ever hold Snapshot copies.
type Lobby struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Language          Language      `json:"language"`
	Players           []*Player     `json:"players"`
	Phase             Phase         `json:"phase"`
	CurrentRound      int           `json:"currentRound"`
	TotalRounds       int           `json:"totalRounds"`
	CurrentWord       string        `json:"currentWord"`
	CorrectDefinition string        `json:"correctDefinition"`
	Definitions       []*Definition `json:"definitions"`
	Votes             []Vote        `json:"votes"`
	UsedWords         []string      `json:"usedWords"`

	// PhaseExpiration is the absolute time at which the current phase
	// auto-advances, in epoch milliseconds. Zero while in the lobby phase.
	PhaseExpiration int64 `json:"phaseExpiration"`

	Timing Timing `json:"-"`
}

// Snapshot is the full-state view broadcast to every client after each applied
// action. Clients replace their mirror wholesale with the latest snapshot, so a
// lost broadcast is healed by the next one.
type Snapshot struct {
	LobbyID           string       `json:"lobbyId"`
	Name              string       `json:"name"`
	Language          Language     `json:"language"`
	Phase             Phase        `json:"phase"`
	Players           []Player     `json:"players"`
	CurrentWord       string       `json:"currentWord"`
	CorrectDefinition string       `json:"correctDefinition"`
	Definitions       []Definition `json:"definitions"`
	Votes             []Vote       `json:"votes"`
	CurrentRound      int          `json:"currentRound"`
	TotalRounds       int          `json:"totalRounds"`

	// TimeLeft is the host-computed remaining seconds for the current phase.
	// Clients rebuild their local countdown from this value on every snapshot
	// rather than trusting wall-clock agreement across peers.
	TimeLeft int `json:"timeLeft"`
}

// Snapshot builds the broadcast view of the lobby at the given instant.
func (l *Lobby) Snapshot(now time.Time) Snapshot {
	snap := Snapshot{
		LobbyID:           l.ID,
		Name:              l.Name,
		Language:          l.Language,
		Phase:             l.Phase,
		CurrentWord:       l.CurrentWord,
		CorrectDefinition: l.CorrectDefinition,
		CurrentRound:      l.CurrentRound,
		TotalRounds:       l.TotalRounds,
		TimeLeft:          l.TimeLeft(now),
		Players:           make([]Player, 0, len(l.Players)),
		Definitions:       make([]Definition, 0, len(l.Definitions)),
		Votes:             make([]Vote, len(l.Votes)),
	}
	for _, p := range l.Players {
		snap.Players = append(snap.Players, *p)
	}
	for _, d := range l.Definitions {
		dd := *d
		dd.Votes = append([]string(nil), d.Votes...)
		snap.Definitions = append(snap.Definitions, dd)
	}
	copy(snap.Votes, l.Votes)
	return snap
}

// TimeLeft reports whole seconds remaining until PhaseExpiration, floored at zero.
func (l *Lobby) TimeLeft(now time.Time) int {
	if l.PhaseExpiration == 0 {
		return 0
	}
	ms := l.PhaseExpiration - now.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return int(ms / 1000)
}

// FindPlayer returns the player with the given id, or nil.
func (l *Lobby) FindPlayer(id string) *Player {
	for _, p := range l.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// FindDefinition returns the definition with the given id, or nil.
func (l *Lobby) FindDefinition(id string) *Definition {
	for _, d := range l.Definitions {
		if d.ID == id {
			return d
		}
	}
	return nil
}
