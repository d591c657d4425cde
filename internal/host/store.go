// internal/host/store.go
package host

import (
	"crypto/rand"
	"math/big"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/nvannier/fictionary/internal/game"
	"github.com/nvannier/fictionary/internal/session"
)

// codeCharset excludes lowercase to keep join codes easy to read aloud.
const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// codeLength is the join code length. Four characters over a 36-symbol
// alphabet gives ~1.7M codes, plenty for concurrently open lobbies.
const codeLength = 4

// GenerateCode returns a random join code.
func GenerateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

// Store tracks every lobby this process hosts, keyed by join code. Lobby
// creation is host-local: it happens here, not over a replication channel,
// because until the lobby exists there is no authority to send an action to.
type Store struct {
	mu      sync.Mutex
	lobbies map[string]*Authority
	words   game.WordSource

	// onRemove lets the serving layer release per-lobby resources (attached
	// transports' registries) when a lobby is torn down.
	onRemove func(code string)
}

// SetOnRemove registers a hook invoked after each lobby teardown.
func (s *Store) SetOnRemove(fn func(code string)) {
	s.mu.Lock()
	s.onRemove = fn
	s.mu.Unlock()
}

// NewStore creates an empty lobby store drawing words from the given source.
func NewStore(words game.WordSource) *Store {
	return &Store{lobbies: make(map[string]*Authority), words: words}
}

// Created describes a freshly created lobby: the join code other players use,
// the creator's seat and the creator's reconnect token.
type Created struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
}

// Create makes a new lobby with the creator seated, retrying code generation
// on the rare collision. The creator connects like any other peer afterwards,
// reclaiming the seat with the returned token.
func (s *Store) Create(nickname string, totalRounds int, language game.Language) (Created, *Authority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code string
	for {
		c, err := GenerateCode()
		if err != nil {
			return Created{}, nil, err
		}
		if _, taken := s.lobbies[c]; !taken {
			code = c
			break
		}
		log.WithField("code", c).Debug("join code collision, regenerating")
	}

	lobby, creator := game.NewLobby(code, nickname, totalRounds, language)
	token, err := session.CreateToken(code, creator.ID)
	if err != nil {
		return Created{}, nil, err
	}

	auth := NewAuthority(lobby, s.words)
	auth.SetOnEmpty(s.remove)
	s.lobbies[code] = auth
	log.WithFields(log.Fields{"lobby": code, "creator": creator.Nickname}).Info("lobby created")
	return Created{Code: code, PlayerID: creator.ID, Token: token}, auth, nil
}

// Get returns the authority hosting the given code.
func (s *Store) Get(code string) (*Authority, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	auth, ok := s.lobbies[code]
	if !ok {
		return nil, game.ErrLobbyNotFound
	}
	return auth, nil
}

// List returns a snapshot of every hosted lobby, ordered by join code.
func (s *Store) List() []game.Snapshot {
	s.mu.Lock()
	auths := make([]*Authority, 0, len(s.lobbies))
	for _, a := range s.lobbies {
		auths = append(auths, a)
	}
	s.mu.Unlock()

	snaps := make([]game.Snapshot, 0, len(auths))
	for _, a := range auths {
		snaps = append(snaps, a.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].LobbyID < snaps[j].LobbyID })
	return snaps
}

// remove tears a lobby down once its last seat empties.
func (s *Store) remove(code string) {
	s.mu.Lock()
	auth, ok := s.lobbies[code]
	delete(s.lobbies, code)
	onRemove := s.onRemove
	s.mu.Unlock()
	if !ok {
		return
	}
	auth.Close()
	if onRemove != nil {
		onRemove(code)
	}
	log.WithField("lobby", code).Info("lobby torn down")
}

// Close tears down every hosted lobby.
func (s *Store) Close() {
	s.mu.Lock()
	auths := make([]*Authority, 0, len(s.lobbies))
	for _, a := range s.lobbies {
		auths = append(auths, a)
	}
	s.lobbies = make(map[string]*Authority)
	s.mu.Unlock()
	for _, a := range auths {
		a.Close()
	}
}
