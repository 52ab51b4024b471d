package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// ChatRoom holds the live connections watching one conversation.
type ChatRoom struct {
	Key     string
	clients map[*Client]struct{}
	mu      sync.RWMutex
}

func NewChatRoom(key string) *ChatRoom {
	return &ChatRoom{Key: key, clients: make(map[*Client]struct{})}
}

func (r *ChatRoom) Join(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c] = struct{}{}
}

func (r *ChatRoom) Leave(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
}

func (r *ChatRoom) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends payload to every client in the room except from (which may be nil).
func (r *ChatRoom) Broadcast(from *Client, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("section", "ws").Msg("marshal payload")
		return
	}
	r.mu.RLock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		if c != from {
			clients = append(clients, c)
		}
	}
	r.mu.RUnlock()
	for _, c := range clients {
		c.deliver(data)
	}
}

// ChatHub holds conversation rooms by thread key and the per-user inbox hub.
type ChatHub struct {
	*Hub
	mu    sync.Mutex
	rooms map[string]*ChatRoom
}

func NewChatHub() *ChatHub {
	return &ChatHub{Hub: NewHub(), rooms: make(map[string]*ChatRoom)}
}

// Join adds c to the room for key, creating it if needed.
func (h *ChatHub) Join(key string, c *Client) *ChatRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[key]
	if !ok {
		r = NewChatRoom(key)
		h.rooms[key] = r
	}
	r.Join(c)
	return r
}

// Leave removes c from the room and drops the room once it is empty.
func (h *ChatHub) Leave(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[key]
	if !ok {
		return
	}
	r.Leave(c)
	if r.ClientCount() == 0 {
		delete(h.rooms, key)
	}
}

func (h *ChatHub) GetRoom(key string) *ChatRoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[key]
}

func (h *ChatHub) BroadcastToRoom(key string, payload interface{}) {
	if r := h.GetRoom(key); r != nil {
		r.Broadcast(nil, payload)
	}
}

func (h *ChatHub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
