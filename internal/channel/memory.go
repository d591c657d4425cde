// internal/channel/memory.go
package channel

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// peerBuffer is the per-peer outbound queue depth. A client that stops
// draining loses snapshots, which is safe: state messages are full snapshots.
const peerBuffer = 16

// MemoryHost is an in-process HostTransport. It serves the host participant's
// own controller (so the host's UI mirrors state through the same path as
// everyone else) and multi-client tests.
type MemoryHost struct {
	mu      sync.Mutex
	handler PeerHandler
	peers   map[string]*memoryClient
	closed  bool
}

// NewMemoryHost creates a loopback transport delivering peer actions to h.
func NewMemoryHost(h PeerHandler) *MemoryHost {
	return &MemoryHost{handler: h, peers: make(map[string]*memoryClient)}
}

// Connect registers a new peer and returns its client end.
func (m *MemoryHost) Connect(peerID string) ClientChannel {
	c := &memoryClient{host: m, peerID: peerID, recv: make(chan Message, peerBuffer)}
	m.mu.Lock()
	m.peers[peerID] = c
	m.mu.Unlock()
	m.handler.PeerConnected(peerID)
	return c
}

// Broadcast delivers msg to every connected peer, dropping it for peers whose
// buffer is full.
func (m *MemoryHost) Broadcast(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrChannelClosed
	}
	for id, c := range m.peers {
		if !c.deliver(msg) {
			log.WithField("peer", id).Warn("dropping message for slow loopback peer")
		}
	}
	return nil
}

// SendTo delivers msg to one peer.
func (m *MemoryHost) SendTo(_ context.Context, peerID string, msg Message) error {
	m.mu.Lock()
	c, ok := m.peers[peerID]
	m.mu.Unlock()
	if !ok {
		return ErrPeerUnavailable
	}
	if !c.deliver(msg) {
		return ErrPeerUnavailable
	}
	return nil
}

// Close tears down every client end.
func (m *MemoryHost) Close() error {
	m.mu.Lock()
	peers := make([]*memoryClient, 0, len(m.peers))
	for _, c := range m.peers {
		peers = append(peers, c)
	}
	m.peers = make(map[string]*memoryClient)
	m.closed = true
	m.mu.Unlock()
	for _, c := range peers {
		c.closeRecv()
	}
	return nil
}

func (m *MemoryHost) disconnect(peerID string) {
	m.mu.Lock()
	c, ok := m.peers[peerID]
	if ok {
		delete(m.peers, peerID)
	}
	closed := m.closed
	m.mu.Unlock()
	if !ok {
		return
	}
	c.closeRecv()
	if !closed {
		m.handler.PeerDisconnected(peerID)
	}
}

type memoryClient struct {
	host   *MemoryHost
	peerID string

	mu     sync.Mutex
	recv   chan Message
	closed bool
}

func (c *memoryClient) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	c.host.handler.HandleMessage(c.peerID, msg)
	return nil
}

func (c *memoryClient) Recv() <-chan Message { return c.recv }

func (c *memoryClient) Close() error {
	c.host.disconnect(c.peerID)
	return nil
}

func (c *memoryClient) deliver(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.recv <- msg:
		return true
	default:
		return false
	}
}

func (c *memoryClient) closeRecv() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.recv)
	}
}
