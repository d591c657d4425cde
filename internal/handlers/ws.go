// internal/handlers/ws.go
package handlers

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/nvannier/fictionary/internal/middleware"
)

// LobbyWSHandler upgrades GET /ws/{code} and serves the peer until it drops.
// The peer speaks the replication protocol from there on: actions in, acks
// and full-state snapshots out.
func (s *Server) LobbyWSHandler(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if _, err := s.store.Get(code); err != nil {
		writeError(w, errToStatus(err), "lobby does not exist")
		return
	}
	ws, ok := s.wsHost(code)
	if !ok {
		writeError(w, http.StatusNotFound, "lobby does not exist")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"fictionary"},
		OriginPatterns: []string{"*"}, // Adjust in production
	})
	if err != nil {
		s.logger.Warnf("websocket accept error: %v", err)
		return
	}

	middleware.LogWebSocketConnect(s.logger, r.RemoteAddr, code)
	ws.ServePeer(r.Context(), conn)
	middleware.LogWebSocketDisconnect(s.logger, r.RemoteAddr, code)
}
