// internal/handlers/lobby.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nvannier/fictionary/internal/game"
)

// createLobbyRequest is the body of POST /lobbies.
type createLobbyRequest struct {
	Nickname string `json:"nickname"`
	Rounds   int    `json:"rounds"`
	Language string `json:"language"`
}

// CreateLobbyHandler creates a lobby with the caller seated as host. Creation
// is a plain HTTP call rather than a channel action: until the lobby exists
// there is nothing to open a channel to. The response carries the join code
// for other players plus the creator's seat and reconnect token; the creator
// then connects to the websocket like everyone else and resumes with the
// token.
func (s *Server) CreateLobbyHandler(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Nickname = strings.TrimSpace(req.Nickname)
	if req.Nickname == "" {
		writeError(w, http.StatusBadRequest, "nickname is required")
		return
	}

	language := game.Language(req.Language)
	switch language {
	case "":
		language = game.LanguageEnglish
	case game.LanguageEnglish, game.LanguageFrench:
	default:
		writeError(w, http.StatusBadRequest, "unsupported language")
		return
	}

	created, auth, err := s.store.Create(req.Nickname, req.Rounds, language)
	if err != nil {
		s.logger.Errorf("lobby creation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create lobby")
		return
	}
	s.attachTransports(auth)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// lobbySummary is one row of GET /lobbies. Discovery deliberately exposes
// less than a snapshot: no words, definitions or votes leak before joining.
type lobbySummary struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Phase       string `json:"phase"`
	PlayerCount int    `json:"playerCount"`
	Joinable    bool   `json:"joinable"`
}

// ListLobbiesHandler lists hosted lobbies for the join screen.
func (s *Server) ListLobbiesHandler(w http.ResponseWriter, r *http.Request) {
	snaps := s.store.List()
	summaries := make([]lobbySummary, 0, len(snaps))
	for _, snap := range snaps {
		summaries = append(summaries, lobbySummary{
			Code:        snap.LobbyID,
			Name:        snap.Name,
			Language:    string(snap.Language),
			Phase:       string(snap.Phase),
			PlayerCount: len(snap.Players),
			Joinable:    snap.Phase == game.PhaseLobby,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// errToStatus maps game validation errors onto HTTP statuses for the few
// endpoints that surface them directly.
func errToStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrLobbyNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrNicknameTaken), errors.Is(err, game.ErrGameAlreadyStarted), errors.Is(err, game.ErrAlreadyActed):
		return http.StatusConflict
	case errors.Is(err, game.ErrInsufficientPlayers), errors.Is(err, game.ErrWrongPhase):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
