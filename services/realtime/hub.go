package realtime

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"wayfinder/models"

	"go.uber.org/zap"
)

const shardCount = 32

const (
	DefaultIdleTimeout      = 60 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultSendBuffer       = 64
)

// Authenticator resolves a bearer token to a user id.
type Authenticator func(token string) (string, error)

type Config struct {
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	SendBuffer       int
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	return c
}

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]*Client
}

// Hub maps each user to their live connections. The map is split into
// shards so broadcasts to different users rarely touch the same lock.
type Hub struct {
	shards [shardCount]*shard
	auth   Authenticator
	cfg    Config
	logger *zap.Logger
	closed atomic.Bool
}

func NewHub(auth Authenticator, cfg Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{auth: auth, cfg: cfg.withDefaults(), logger: logger}
	for i := range h.shards {
		h.shards[i] = &shard{users: make(map[string]map[string]*Client)}
	}
	return h
}

func (h *Hub) shardFor(userID string) *shard {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return h.shards[f.Sum32()%shardCount]
}

// Register adds an authenticated client and moves it to Open.
func (h *Hub) Register(c *Client) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	if !c.transition(StateAuthenticated, StateOpen) {
		return ErrNotAuthenticated
	}
	s := h.shardFor(c.UserID)
	s.mu.Lock()
	// Shutdown sets closed before it walks the shards, so a client inserted
	// here is either seen by that walk or refused.
	if h.closed.Load() {
		s.mu.Unlock()
		c.closeWith(closeGoingAway, "server shutting down")
		return ErrHubClosed
	}
	conns, ok := s.users[c.UserID]
	if !ok {
		conns = make(map[string]*Client)
		s.users[c.UserID] = conns
	}
	conns[c.ID] = c
	s.mu.Unlock()

	h.logger.Debug("realtime connection opened",
		zap.String("userId", c.UserID),
		zap.String("connectionId", c.ID),
	)
	return nil
}

// Unregister drops the mapping for c. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	s := h.shardFor(c.UserID)
	s.mu.Lock()
	if conns, ok := s.users[c.UserID]; ok {
		if _, present := conns[c.ID]; present {
			delete(conns, c.ID)
			if len(conns) == 0 {
				delete(s.users, c.UserID)
			}
		}
	}
	s.mu.Unlock()
}

// Broadcast enqueues env on every open connection of userID without
// blocking. Connections whose buffer is full are closed.
func (h *Hub) Broadcast(userID string, env models.Envelope) models.BroadcastReport {
	var report models.BroadcastReport
	msg, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("failed to encode realtime envelope", zap.Error(err))
		return report
	}

	s := h.shardFor(userID)
	s.mu.RLock()
	targets := make([]*Client, 0, len(s.users[userID]))
	for _, c := range s.users[userID] {
		targets = append(targets, c)
	}
	s.mu.RUnlock()

	report.Connections = len(targets)
	for _, c := range targets {
		if c.enqueue(msg) {
			report.Delivered++
			continue
		}
		h.logger.Warn("closing slow realtime consumer",
			zap.String("userId", userID),
			zap.String("connectionId", c.ID),
		)
		c.closeWith(closeSlowConsumer, "send buffer full")
	}
	return report
}

// ConnectionCount is the number of open connections of userID.
func (h *Hub) ConnectionCount(userID string) int {
	s := h.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

// Len is the number of open connections across all users.
func (h *Hub) Len() int {
	total := 0
	for _, s := range h.shards {
		s.mu.RLock()
		for _, conns := range s.users {
			total += len(conns)
		}
		s.mu.RUnlock()
	}
	return total
}

// Shutdown closes every connection and refuses new registrations.
func (h *Hub) Shutdown() {
	h.closed.Store(true)
	var all []*Client
	for _, s := range h.shards {
		s.mu.Lock()
		for _, conns := range s.users {
			for _, c := range conns {
				all = append(all, c)
			}
		}
		s.mu.Unlock()
	}
	for _, c := range all {
		c.closeWith(closeGoingAway, "server shutting down")
	}
	h.logger.Info("realtime hub shut down", zap.Int("connections", len(all)))
}
