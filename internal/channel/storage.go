// internal/channel/storage.go
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// The storage transport replicates through a shared store instead of direct
// connections, mirroring the original same-machine transport: the host
// persists the latest snapshot under a lobby key, clients poll it and
// synthesize a state message when it changes, and client actions queue on a
// list the host drains. The store carries no connection lifecycle, so
// disconnects only happen via explicit actions or client Close.

const (
	// DefaultPollInterval is how often storage clients check for a new snapshot.
	DefaultPollInterval = time.Second

	// storageTTL keeps abandoned lobby keys from accumulating in the store.
	storageTTL = 24 * time.Hour

	// popTimeout bounds blocking pops so loops notice shutdown.
	popTimeout = time.Second
)

func stateKey(code string) string  { return "fictionary:lobby:" + code + ":state" }
func actionKey(code string) string { return "fictionary:lobby:" + code + ":actions" }
func outboxKey(code, peerID string) string {
	return "fictionary:lobby:" + code + ":outbox:" + peerID
}

// storageEnvelope wraps a client message with its origin so the host can route
// the ack back through the peer's outbox list.
type storageEnvelope struct {
	PeerID  string  `json:"peerId"`
	Message Message `json:"message"`
}

// StorageHost is the shared-store HostTransport for one lobby.
type StorageHost struct {
	rdb     *redis.Client
	code    string
	handler PeerHandler

	mu     sync.Mutex
	seen   map[string]bool
	cancel context.CancelFunc
}

// NewStorageHost starts draining the lobby's action queue into h.
func NewStorageHost(rdb *redis.Client, code string, h PeerHandler) *StorageHost {
	ctx, cancel := context.WithCancel(context.Background())
	s := &StorageHost{
		rdb:     rdb,
		code:    code,
		handler: h,
		seen:    make(map[string]bool),
		cancel:  cancel,
	}
	go s.drainActions(ctx)
	return s
}

func (s *StorageHost) drainActions(ctx context.Context) {
	for {
		res, err := s.rdb.BLPop(ctx, popTimeout, actionKey(s.code)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithField("lobby", s.code).Warnf("action queue pop failed: %v", err)
			time.Sleep(popTimeout)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var env storageEnvelope
		if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
			log.WithField("lobby", s.code).Warnf("dropping malformed action envelope: %v", err)
			continue
		}
		s.mu.Lock()
		first := !s.seen[env.PeerID]
		s.seen[env.PeerID] = true
		s.mu.Unlock()
		if first {
			s.handler.PeerConnected(env.PeerID)
		}
		if env.Message.Type == MessageHeartbeat {
			_ = s.SendTo(ctx, env.PeerID, Message{Type: MessageHeartbeat, Timestamp: time.Now().UnixMilli()})
			continue
		}
		s.handler.HandleMessage(env.PeerID, env.Message)
	}
}

// Broadcast persists the snapshot message under the lobby's state key; every
// polling client picks it up on its next tick.
func (s *StorageHost) Broadcast(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, stateKey(s.code), data, storageTTL).Err(); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// SendTo queues a message on the peer's private outbox list.
func (s *StorageHost) SendTo(ctx context.Context, peerID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := outboxKey(s.code, peerID)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, storageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue message for peer %s: %w", peerID, err)
	}
	return nil
}

// Close stops the drain loop and removes the lobby's keys.
func (s *StorageHost) Close() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), popTimeout)
	defer cancel()
	return s.rdb.Del(ctx, stateKey(s.code), actionKey(s.code)).Err()
}

// StorageClient is the polling ClientChannel counterpart.
type StorageClient struct {
	rdb          *redis.Client
	code         string
	peerID       string
	pollInterval time.Duration

	recv   chan Message
	cancel context.CancelFunc

	mu        sync.Mutex
	lastState string
	closed    bool
}

// NewStorageClient starts polling the lobby's state key and the peer's outbox.
// peerID identifies this client for ack routing; controllers use a fresh uuid.
func NewStorageClient(rdb *redis.Client, code, peerID string, pollInterval time.Duration) *StorageClient {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &StorageClient{
		rdb:          rdb,
		code:         code,
		peerID:       peerID,
		pollInterval: pollInterval,
		recv:         make(chan Message, peerBuffer),
		cancel:       cancel,
	}
	go c.pollState(ctx)
	go c.drainOutbox(ctx)
	return c
}

// pollState detects external mutation of the shared snapshot and synthesizes a
// state message, which is what makes polling storage obey the same channel
// contract as the push transport.
func (c *StorageClient) pollState(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		raw, err := c.rdb.Get(ctx, stateKey(c.code)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithField("lobby", c.code).Debugf("state poll failed: %v", err)
			continue
		}
		c.mu.Lock()
		changed := raw != c.lastState
		c.lastState = raw
		c.mu.Unlock()
		if !changed {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			log.WithField("lobby", c.code).Warnf("dropping malformed snapshot: %v", err)
			continue
		}
		c.deliver(msg)
	}
}

func (c *StorageClient) drainOutbox(ctx context.Context) {
	for {
		res, err := c.rdb.BLPop(ctx, popTimeout, outboxKey(c.code, c.peerID)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			time.Sleep(popTimeout)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			log.WithField("lobby", c.code).Warnf("dropping malformed outbox message: %v", err)
			continue
		}
		c.deliver(msg)
	}
}

func (c *StorageClient) deliver(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.recv <- msg:
	default:
		log.WithField("lobby", c.code).Warn("dropping message for slow storage client")
	}
}

// Send queues an action on the lobby's shared action list.
func (c *StorageClient) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}
	data, err := json.Marshal(storageEnvelope{PeerID: c.peerID, Message: msg})
	if err != nil {
		return err
	}
	key := actionKey(c.code)
	pipe := c.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, storageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue action: %w", err)
	}
	return nil
}

// Recv yields synthesized state messages and outbox deliveries.
func (c *StorageClient) Recv() <-chan Message { return c.recv }

// Close stops polling.
func (c *StorageClient) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.recv)
	}
	return nil
}
