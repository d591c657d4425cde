// internal/channel/ws.go
package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// writeTimeout bounds a single websocket write so one stuck peer cannot stall
// the write pump.
const writeTimeout = 3 * time.Second

// WSHost is the websocket HostTransport: the host process accepts data
// connections and relays state to every peer, mirroring the original
// peer-to-peer mesh with one participant acting as host.
type WSHost struct {
	mu      sync.Mutex
	handler PeerHandler
	peers   map[string]*wsPeer
	closed  bool
}

type wsPeer struct {
	id     string
	conn   *websocket.Conn
	out    chan Message
	cancel context.CancelFunc
}

// NewWSHost creates a websocket transport delivering peer actions to h.
func NewWSHost(h PeerHandler) *WSHost {
	return &WSHost{handler: h, peers: make(map[string]*wsPeer)}
}

// ServePeer registers an accepted connection and blocks in its read loop until
// the peer goes away. The HTTP handler that accepted the upgrade calls this.
func (h *WSHost) ServePeer(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	peer := &wsPeer{
		id:     uuid.NewString(),
		conn:   conn,
		out:    make(chan Message, peerBuffer),
		cancel: cancel,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusGoingAway, "host shutting down")
		return
	}
	h.peers[peer.id] = peer
	h.mu.Unlock()
	h.handler.PeerConnected(peer.id)

	go peer.writePump(ctx)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.WithField("peer", peer.id).Warnf("dropping malformed message: %v", err)
			continue
		}
		if msg.Type == MessageHeartbeat {
			// Echo liveness probes without involving the authority.
			h.SendTo(ctx, peer.id, Message{Type: MessageHeartbeat, Timestamp: time.Now().UnixMilli()})
			continue
		}
		h.handler.HandleMessage(peer.id, msg)
	}

	h.removePeer(peer.id)
	h.handler.PeerDisconnected(peer.id)
}

func (h *WSHost) removePeer(peerID string) {
	h.mu.Lock()
	peer, ok := h.peers[peerID]
	if ok {
		delete(h.peers, peerID)
	}
	h.mu.Unlock()
	if ok {
		peer.cancel()
		close(peer.out)
	}
}

// Broadcast enqueues msg for every connected peer. Slow peers drop the
// message; the next full snapshot heals them.
func (h *WSHost) Broadcast(_ context.Context, msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrChannelClosed
	}
	for id, peer := range h.peers {
		select {
		case peer.out <- msg:
		default:
			log.WithField("peer", id).Warn("dropping message for slow websocket peer")
		}
	}
	return nil
}

// SendTo enqueues msg for a single peer.
func (h *WSHost) SendTo(_ context.Context, peerID string, msg Message) error {
	h.mu.Lock()
	peer, ok := h.peers[peerID]
	if h.closed || !ok {
		h.mu.Unlock()
		return ErrPeerUnavailable
	}
	select {
	case peer.out <- msg:
		h.mu.Unlock()
		return nil
	default:
		h.mu.Unlock()
		return ErrPeerUnavailable
	}
}

// Close disconnects every peer.
func (h *WSHost) Close() error {
	h.mu.Lock()
	peers := make([]*wsPeer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	h.peers = make(map[string]*wsPeer)
	h.closed = true
	h.mu.Unlock()
	for _, p := range peers {
		p.cancel()
		p.conn.Close(websocket.StatusGoingAway, "host shutting down")
	}
	return nil
}

func (p *wsPeer) writePump(ctx context.Context) {
	for msg := range p.out {
		data, err := json.Marshal(msg)
		if err != nil {
			log.WithField("peer", p.id).Errorf("failed to marshal outbound message: %v", err)
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err = p.conn.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			log.WithField("peer", p.id).Debugf("write failed: %v", err)
			return
		}
	}
}

// WSClient is the websocket ClientChannel used by remote participants to reach
// the lobby's host.
type WSClient struct {
	conn *websocket.Conn
	recv chan Message

	mu     sync.Mutex
	closed bool
}

// DialWS connects to a lobby's websocket endpoint and starts the read loop.
func DialWS(ctx context.Context, url string) (*WSClient, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &WSClient{conn: conn, recv: make(chan Message, peerBuffer)}
	go c.readLoop()
	return c, nil
}

func (c *WSClient) readLoop() {
	for {
		_, data, err := c.conn.Read(context.Background())
		if err != nil {
			break
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warnf("dropping malformed message from host: %v", err)
			continue
		}
		c.recv <- msg
	}
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.recv)
	}
	c.mu.Unlock()
}

// Send writes one message to the host.
func (c *WSClient) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, data)
}

// Recv yields messages from the host; it is closed when the connection drops.
func (c *WSClient) Recv() <-chan Message { return c.recv }

// Close shuts the connection down cleanly.
func (c *WSClient) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}
