// internal/handlers/server.go

// Package handlers exposes the lobby service over HTTP: lobby creation and
// discovery as JSON endpoints, gameplay over a per-lobby websocket.
package handlers

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nvannier/fictionary/internal/channel"
	"github.com/nvannier/fictionary/internal/host"
	"github.com/nvannier/fictionary/internal/middleware"
)

// Server wires the lobby store to its transports. Every hosted lobby gets a
// websocket transport; when Redis is configured it additionally gets a
// shared-store transport for clients that can only poll.
type Server struct {
	logger *logrus.Logger
	store  *host.Store
	rdb    *redis.Client // nil disables the storage transport

	mu      sync.Mutex
	wsHosts map[string]*channel.WSHost
}

// NewServer creates the serving layer over a lobby store. rdb may be nil.
func NewServer(logger *logrus.Logger, store *host.Store, rdb *redis.Client) *Server {
	s := &Server{
		logger:  logger,
		store:   store,
		rdb:     rdb,
		wsHosts: make(map[string]*channel.WSHost),
	}
	store.SetOnRemove(s.releaseLobby)
	return s
}

// Routes builds the router: lobby CRUD plus the gameplay websocket.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.LogMiddleware(s.logger))

	r.Post("/lobbies", s.CreateLobbyHandler)
	r.Get("/lobbies", s.ListLobbiesHandler)
	r.Get("/ws/{code}", s.LobbyWSHandler)

	return r
}

// attachTransports gives a fresh authority its serving-side transports.
func (s *Server) attachTransports(auth *host.Authority) {
	ws := channel.NewWSHost(auth)
	auth.AttachTransport(ws)
	if s.rdb != nil {
		auth.AttachTransport(channel.NewStorageHost(s.rdb, auth.LobbyID(), auth))
	}

	s.mu.Lock()
	s.wsHosts[auth.LobbyID()] = ws
	s.mu.Unlock()
}

func (s *Server) wsHost(code string) (*channel.WSHost, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.wsHosts[code]
	return ws, ok
}

// releaseLobby drops the transport registry entry for a torn-down lobby. The
// authority has already closed the transports themselves.
func (s *Server) releaseLobby(code string) {
	s.mu.Lock()
	delete(s.wsHosts, code)
	s.mu.Unlock()
}

func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}
