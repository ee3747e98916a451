package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"expertvakil/server/internal/metrics"

	"go.uber.org/zap"
)

// Hub maintains the set of active clients. A user may be connected from
// several devices at once; each connection has its own chat session.
type Hub struct {
	// Registered clients grouped by user ID
	clients map[string]map[*Client]struct{}

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	done chan struct{}
	log  *zap.SugaredLogger
	mu   sync.RWMutex
}

// NewHub creates a new WebSocket hub
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main loop. It returns when ctx is done, closing
// every remaining client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case <-ctx.Done():
			close(h.done)
			h.shutdown()
			return
		}
	}
}

// Add registers client unless the hub has stopped
func (h *Hub) Add(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Remove unregisters client unless the hub has stopped
func (h *Hub) Remove(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}
	metrics.Sessions.Inc()

	h.log.Infow("client connected", "user_id", client.UserID, "connections", len(h.clients[client.UserID]))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	client.closeSend()
	metrics.Sessions.Dec()

	h.log.Infow("client disconnected", "user_id", client.UserID)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.clients {
		for client := range conns {
			client.closeSend()
			metrics.Sessions.Dec()
		}
		delete(h.clients, userID)
	}
}

// BroadcastToUser sends a message to every connection of a user
func (h *Hub) BroadcastToUser(userID string, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Errorw("failed to marshal message", "type", message.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		if !client.send(data) {
			h.log.Warnw("dropped message for slow client", "user_id", userID, "type", message.Type)
		}
	}
}

// IsUserOnline checks if a user is currently connected
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, ok := h.clients[userID]
	return ok
}

// GetOnlineUsers returns a list of currently online user IDs
func (h *Hub) GetOnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	userIDs := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		userIDs = append(userIDs, userID)
	}

	return userIDs
}

// GetOnlineCount returns the number of online users
func (h *Hub) GetOnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// GetConnectionCount returns the number of open connections
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}
