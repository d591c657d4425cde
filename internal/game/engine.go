// internal/game/engine.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WordSource supplies a word and its true definition for a language, excluding
// words the lobby has already played. Implementations live outside this package.
type WordSource interface {
	GetWord(ctx context.Context, language Language, usedWords []string) (word, definition string, err error)
}

// NewLobby creates a lobby in the lobby phase with the creator seated as its
// first player. totalRounds is clamped to [MinRounds, MaxRounds].
func NewLobby(id, nickname string, totalRounds int, language Language) (*Lobby, *Player) {
	if totalRounds < MinRounds {
		totalRounds = MinRounds
	}
	if totalRounds > MaxRounds {
		totalRounds = MaxRounds
	}
	creator := &Player{
		ID:        uuid.NewString(),
		Nickname:  nickname,
		Score:     0,
		Connected: true,
	}
	l := &Lobby{
		ID:           id,
		Name:         nickname + "'s Game",
		Language:     language,
		Players:      []*Player{creator},
		Phase:        PhaseLobby,
		CurrentRound: 1,
		TotalRounds:  totalRounds,
		Timing:       DefaultTiming,
	}
	return l, creator
}

// AddPlayer seats a new player, or reconnects a disconnected player who holds
// the same nickname (same id, score preserved). Joining a connected player's
// nickname fails with ErrNicknameTaken; joining mid-game fails with
// ErrGameAlreadyStarted.
func (l *Lobby) AddPlayer(nickname string) (*Player, error) {
	for _, p := range l.Players {
		if p.Nickname != nickname {
			continue
		}
		if p.Connected {
			return nil, ErrNicknameTaken
		}
		p.Connected = true
		return p, nil
	}
	if l.Phase != PhaseLobby {
		return nil, ErrGameAlreadyStarted
	}
	p := &Player{
		ID:        uuid.NewString(),
		Nickname:  nickname,
		Score:     0,
		Connected: true,
	}
	l.Players = append(l.Players, p)
	return p, nil
}

// RemovePlayer deletes a player's seat outright. Returns true when the lobby is
// now empty and should be torn down.
func (l *Lobby) RemovePlayer(playerID string) (empty bool, err error) {
	for i, p := range l.Players {
		if p.ID == playerID {
			l.Players = append(l.Players[:i], l.Players[i+1:]...)
			return len(l.Players) == 0, nil
		}
	}
	return false, ErrPlayerNotFound
}

// SetConnected flips a player's liveness flag without touching their seat.
// Used for transport drops and reconnects; only RemovePlayer deletes a seat.
func (l *Lobby) SetConnected(playerID string, connected bool) error {
	p := l.FindPlayer(playerID)
	if p == nil {
		return ErrPlayerNotFound
	}
	p.Connected = connected
	return nil
}

// StartGame moves the lobby into round 1's definition phase: scores reset, a
// fresh word drawn, the system definition seeded and the phase timer armed.
func (l *Lobby) StartGame(ctx context.Context, words WordSource, now time.Time) error {
	if l.Phase != PhaseLobby {
		return ErrWrongPhase
	}
	if len(l.Players) < MinPlayers {
		return ErrInsufficientPlayers
	}
	for _, p := range l.Players {
		p.Score = 0
	}
	l.CurrentRound = 1
	l.UsedWords = nil
	if err := l.beginRound(ctx, words, now); err != nil {
		return err
	}
	return nil
}

// beginRound draws a word excluding usedWords, reseeds definitions with the
// system entry, clears votes and arms the definition timer.
func (l *Lobby) beginRound(ctx context.Context, words WordSource, now time.Time) error {
	word, definition, err := words.GetWord(ctx, l.Language, l.UsedWords)
	if err != nil {
		return err
	}
	l.Phase = PhaseDefinition
	l.CurrentWord = word
	l.CorrectDefinition = definition
	l.UsedWords = append(l.UsedWords, word)
	l.Definitions = []*Definition{{
		ID:        uuid.NewString(),
		PlayerID:  SystemPlayerID,
		Text:      definition,
		Votes:     []string{},
		IsCorrect: true,
	}}
	l.Votes = nil
	l.PhaseExpiration = now.Add(l.Timing.Definition).UnixMilli()
	return nil
}

// SubmitDefinition records a player's fake definition. At most one per player
// per round; only valid during the definition phase.
func (l *Lobby) SubmitDefinition(playerID, text string) error {
	if l.Phase != PhaseDefinition {
		return ErrWrongPhase
	}
	if l.FindPlayer(playerID) == nil {
		return ErrPlayerNotFound
	}
	for _, d := range l.Definitions {
		if d.PlayerID == playerID {
			return ErrAlreadyActed
		}
	}
	l.Definitions = append(l.Definitions, &Definition{
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Text:      text,
		Votes:     []string{},
		IsCorrect: false,
	})
	return nil
}

// VoteDefinition records a player's vote. At most one per player per round;
// only valid during the voting phase.
func (l *Lobby) VoteDefinition(playerID, definitionID string) error {
	if l.Phase != PhaseVoting {
		return ErrWrongPhase
	}
	if l.FindPlayer(playerID) == nil {
		return ErrPlayerNotFound
	}
	for _, v := range l.Votes {
		if v.PlayerID == playerID {
			return ErrAlreadyActed
		}
	}
	def := l.FindDefinition(definitionID)
	if def == nil {
		return ErrDefinitionNotFound
	}
	l.Votes = append(l.Votes, Vote{PlayerID: playerID, DefinitionID: definitionID})
	def.Votes = append(def.Votes, playerID)
	return nil
}

// AllSubmitted reports whether the definition phase may end early. This counts
// len(definitions) == len(players)+1 like the original rule: a player who
// disconnects before submitting keeps the round on the timer (the seat still
// counts), so the phase then only advances on expiry.
func (l *Lobby) AllSubmitted() bool {
	return l.Phase == PhaseDefinition && len(l.Definitions) == len(l.Players)+1
}

// AllVoted reports whether every seated player has a recorded vote.
func (l *Lobby) AllVoted() bool {
	if l.Phase != PhaseVoting {
		return false
	}
	for _, p := range l.Players {
		voted := false
		for _, v := range l.Votes {
			if v.PlayerID == p.ID {
				voted = true
				break
			}
		}
		if !voted {
			return false
		}
	}
	return true
}

// AdvancePhase applies one step of the transition table:
//
//	definition -> voting
//	voting     -> results
//	results    -> lobby (scores reset) when the final round is done,
//	              otherwise next round's definition with a fresh word
//
// Advancing from the lobby phase is a no-op; games start via StartGame.
func (l *Lobby) AdvancePhase(ctx context.Context, words WordSource, now time.Time) error {
	switch l.Phase {
	case PhaseDefinition:
		l.Phase = PhaseVoting
		l.PhaseExpiration = now.Add(l.Timing.Voting).UnixMilli()
	case PhaseVoting:
		l.Phase = PhaseResults
		l.PhaseExpiration = now.Add(l.Timing.Results).UnixMilli()
	case PhaseResults:
		if l.CurrentRound >= l.TotalRounds {
			l.Phase = PhaseLobby
			l.PhaseExpiration = 0
			l.CurrentWord = ""
			l.CorrectDefinition = ""
			l.Definitions = nil
			l.Votes = nil
			for _, p := range l.Players {
				p.Score = 0
			}
			return nil
		}
		l.CurrentRound++
		return l.beginRound(ctx, words, now)
	}
	return nil
}
