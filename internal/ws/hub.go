package ws

import (
	"context"
	"sync"

	"mindpalace/backend/pkg/logger"
)

// Relay forwards room frames to other gateway instances.
type Relay interface {
	Publish(ctx context.Context, roomID string, frame []byte) error
}

// Hub tracks connected clients and their room memberships. Frames are queued
// to each member while holding the hub lock, so all members of a room see
// broadcasts in the same order.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	relay   Relay
	log     *logger.Logger
}

// NewHub creates an empty hub. relay may be nil.
func NewHub(relay Relay, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		relay:   relay,
		log:     log,
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes a client from every room and closes its send queue.
// Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.rooms = nil
	close(c.send)
}

// Join adds c to a room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

// Leave removes c from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// InRoom reports whether c has joined room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// RoomSize returns the number of local members of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues frame to every local member of room and hands it to the
// relay for other instances.
func (h *Hub) Broadcast(ctx context.Context, room string, frame []byte) {
	h.DeliverLocal(room, frame)
	if h.relay != nil {
		if err := h.relay.Publish(ctx, room, frame); err != nil {
			h.log.LogError(err, "relay publish failed", "room_id", room)
		}
	}
}

// DeliverLocal queues frame to local members of room only. Clients whose
// queue is full are disconnected.
func (h *Hub) DeliverLocal(room string, frame []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		h.log.Warn("client removed due to blocked channel", "conn_id", c.ID)
		h.removeLocked(c)
	}
	h.mu.Unlock()
}

// SendTo queues frame to a single client. It reports false if the client is
// gone or its queue is full.
func (h *Hub) SendTo(c *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
