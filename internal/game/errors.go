// internal/game/errors.go
package game

import "errors"

// Action validation errors. All are detected host-side before any mutation;
// none of them is fatal to the host process.
var (
	ErrLobbyNotFound       = errors.New("lobby not found")
	ErrGameAlreadyStarted  = errors.New("game already started")
	ErrNicknameTaken       = errors.New("nickname already in use in this lobby")
	ErrInsufficientPlayers = errors.New("need at least 2 players")
	ErrWrongPhase          = errors.New("action not valid in current phase")
	ErrAlreadyActed        = errors.New("player already acted this round")
	ErrPlayerNotFound      = errors.New("player not found in lobby")
	ErrDefinitionNotFound  = errors.New("definition not found")
)
