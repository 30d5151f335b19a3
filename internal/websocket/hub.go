// Package websocket pushes change notifications to connected UI sessions,
// so a second device of the same user refreshes its collections after a
// sync without polling.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
)

// Event is a push message to connected sessions
type Event struct {
	Type       string      `json:"type"`
	Collection string      `json:"collection,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
}

// EventCollectionChanged fires after a record is created or updated.
// Offline drains land as ordinary creates, so this one event also covers
// the post-sync refresh for peer sessions.
const EventCollectionChanged = "COLLECTION_CHANGED"

// Hub maintains the set of active sessions and routes events to them
type Hub struct {
	// Registered sessions map: SessionID -> Client
	clients map[string]*Client

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]*Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			// A reconnecting session replaces its old connection
			if old, ok := h.clients[client.SessionID]; ok {
				close(old.send)
			}
			h.clients[client.SessionID] = client
			log.Printf("🔌 Session connected: %s (user %s)", client.SessionID, client.UserID)
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.SessionID]; ok && current == client {
				delete(h.clients, client.SessionID)
				close(client.send)
				log.Printf("🔌 Session disconnected: %s", client.SessionID)
			}
			h.mu.Unlock()
		}
	}
}

// NotifyUser sends an event to every session of one user. Sessions whose
// send buffer is full are skipped rather than blocked on.
func (h *Hub) NotifyUser(userID string, event Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		log.Printf("Error marshaling event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.send <- msg:
		default:
		}
	}
}

// SessionCount returns the number of connected sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
