package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub is the in-process registry of live connections. Rooms are keyed by
// chat id, or by user id for personal notification rooms. The mutex only
// covers the maps; it is never held across network writes or store calls.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[*Client]bool
	memberships map[*Client]map[string]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:       make(map[string]map[*Client]bool),
		memberships: make(map[*Client]map[string]bool),
	}
}

// Join subscribes a client to a room. Joining a room twice is a no-op.
func (h *Hub) Join(roomKey string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomKey]; !ok {
		h.rooms[roomKey] = make(map[*Client]bool)
	}
	h.rooms[roomKey][client] = true
	if _, ok := h.memberships[client]; !ok {
		h.memberships[client] = make(map[string]bool)
	}
	h.memberships[client][roomKey] = true
}

// LeaveAll removes a client from every room it joined. Called on
// disconnect; empty rooms are deleted.
func (h *Hub) LeaveAll(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomKey := range h.memberships[client] {
		if members, ok := h.rooms[roomKey]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, roomKey)
			}
		}
	}
	delete(h.memberships, client)
}

// Stats reports the current number of rooms and tracked clients.
func (h *Hub) Stats() (rooms int, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms), len(h.memberships)
}

// Broadcast delivers an event to every client currently in the room.
// Delivery is best effort and never blocks on any single connection.
// Broadcasting to a room with no members is a no-op.
func (h *Hub) Broadcast(roomKey string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws encode broadcast: %v", err)
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomKey]))
	for client := range h.rooms[roomKey] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		client.enqueue(payload)
	}
}
