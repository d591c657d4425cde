// internal/session/store.go
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoSession is returned when no token is stored for a lobby.
var ErrNoSession = errors.New("no active session for lobby")

// Store keeps reconnect tokens per lobby code in a single JSON file, the
// client-side half of reconnection. Tokens are keyed by lobby so a player can
// sit in several lobbies from one device.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore opens (or will create) the token file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStorePath places the token file under the user config dir.
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fictionary", "sessions.json"), nil
}

func (s *Store) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	tokens := map[string]string{}
	if err := json.Unmarshal(data, &tokens); err != nil {
		// A corrupt file only costs stored reconnect tokens; start over.
		return map[string]string{}, nil
	}
	return tokens, nil
}

func (s *Store) save(tokens map[string]string) error {
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Save stores the reconnect token for a lobby, replacing any previous one.
func (s *Store) Save(lobbyID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return err
	}
	tokens[lobbyID] = token
	return s.save(tokens)
}

// Get returns the stored token for a lobby, or ErrNoSession.
func (s *Store) Get(lobbyID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return "", err
	}
	token, ok := tokens[lobbyID]
	if !ok {
		return "", ErrNoSession
	}
	return token, nil
}

// Clear drops the stored token for a lobby. Clearing an absent token is a
// no-op: reconnection failure paths call this unconditionally.
func (s *Store) Clear(lobbyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.load()
	if err != nil {
		return err
	}
	delete(tokens, lobbyID)
	return s.save(tokens)
}
