// Package realtime streams studio events to a user's open WebSocket
// connections, across server instances when a Bus is configured.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	sendBuffer   = 256
	publishWait  = 5 * time.Second

	// eventStateChanged is replayed to sockets that join mid-recording.
	eventStateChanged = "state_changed"
)

// Message is the WebSocket frame: an event name and its JSON payload.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Bus carries a user's messages between server instances. Every instance
// subscribed to the user, the publisher included, receives each message.
type Bus interface {
	Publish(ctx context.Context, userID uuid.UUID, msg Message) error
	Subscribe(userID uuid.UUID, deliver func(Message)) (unsubscribe func(), err error)
}

// audience is everything the hub tracks for one user.
type audience struct {
	clients     map[string]*Client
	unsubscribe func()
	lastState   *Message
}

// Hub fans studio events out to the sockets of each user.
type Hub struct {
	mu     sync.RWMutex
	users  map[uuid.UUID]*audience
	bus    Bus
	logger *zap.Logger
}

// NewHub returns a hub. bus may be nil for a single instance.
func NewHub(logger *zap.Logger, bus Bus) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{users: make(map[uuid.UUID]*audience), bus: bus, logger: logger}
}

// Register attaches c to its user and replays the last known recorder
// state. The bus subscription is opened with the user's first socket.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	a := h.users[c.UserID]
	if a == nil {
		a = &audience{clients: make(map[string]*Client)}
		h.users[c.UserID] = a
		if h.bus != nil {
			user := c.UserID
			unsub, err := h.bus.Subscribe(user, func(m Message) { h.deliver(user, m) })
			if err != nil {
				h.logger.Warn("bus subscribe failed, socket gets local events only",
					zap.String("user_id", user.String()), zap.Error(err))
			}
			a.unsubscribe = unsub
		}
	}
	a.clients[c.ID] = c
	replay := a.lastState
	h.mu.Unlock()

	if replay != nil {
		c.enqueue(*replay)
	}
	h.logger.Debug("socket attached", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister detaches c. The user's bus subscription and cached state go
// with their last socket.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var unsub func()
	if a, ok := h.users[c.UserID]; ok {
		delete(a.clients, c.ID)
		if len(a.clients) == 0 {
			unsub = a.unsubscribe
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	h.logger.Debug("socket detached", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// deliver queues m on every local socket of the user. Slow sockets miss
// messages rather than stall the studio.
func (h *Hub) deliver(userID uuid.UUID, m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	a := h.users[userID]
	if a == nil {
		return
	}
	if m.Event == eventStateChanged {
		cp := m
		a.lastState = &cp
	}
	for _, c := range a.clients {
		if !c.enqueue(m) {
			h.logger.Debug("socket behind, event dropped", zap.String("client_id", c.ID), zap.String("event", m.Event))
		}
	}
}

// PublishToUser sends one event to all of the user's sockets. With a bus the
// local copy arrives through the subscription; a failed publish falls back
// to local delivery.
func (h *Hub) PublishToUser(userID uuid.UUID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("event not encodable", zap.String("event", event), zap.Error(err))
		return
	}
	m := Message{Event: event, Data: data}
	if h.bus == nil {
		h.deliver(userID, m)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishWait)
	defer cancel()
	if err := h.bus.Publish(ctx, userID, m); err != nil {
		h.logger.Warn("bus publish failed, delivering locally", zap.String("event", event), zap.Error(err))
		h.deliver(userID, m)
	}
}

// ClientCount returns the number of sockets the user has on this instance.
func (h *Hub) ClientCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if a := h.users[userID]; a != nil {
		return len(a.clients)
	}
	return 0
}
