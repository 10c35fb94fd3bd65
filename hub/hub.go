// hub/hub.go
//
// Package hub fans mutation results out to live viewers. One broadcast
// group exists per renku id; a connection joins and leaves groups
// explicitly and is dropped from every group when it goes away. Groups are
// process-local and in-memory: a restart forgets all memberships.
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/2314069/renku-app/models"
)

// Message is the JSON envelope both directions of the socket use.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event names shared with the clients.
const (
	EventJoinRenku    = "join-renku"
	EventLeaveRenku   = "leave-renku"
	EventVerseAdded   = "verse-added"
	EventRenkuUpdated = "renku-updated"
	EventRenkuDeleted = "renku-deleted"
)

// Conn is the write half of a socket connection. *websocket.Conn satisfies
// it; tests substitute their own.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// Group is the set of live connections viewing one renku.
type Group struct {
	ID    string
	conns map[Conn]bool
	mutex sync.RWMutex
}

// Hub manages all broadcast groups.
type Hub struct {
	groups map[string]*Group
	mutex  sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		groups: make(map[string]*Group),
	}
}

// GroupName derives the broadcast group name for a renku id.
func GroupName(renkuID string) string {
	return "renku-" + renkuID
}

// Join adds a connection to the group for renkuID, creating the group on
// first use. Joining an id with no stored document is allowed; such a
// group simply never sees a snapshot.
func (h *Hub) Join(renkuID string, c Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	name := GroupName(renkuID)
	g, exists := h.groups[name]
	if !exists {
		g = &Group{
			ID:    name,
			conns: make(map[Conn]bool),
		}
		h.groups[name] = g
	}

	g.mutex.Lock()
	g.conns[c] = true
	g.mutex.Unlock()
}

// Leave removes a connection from one group; empty groups are discarded.
func (h *Hub) Leave(renkuID string, c Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	name := GroupName(renkuID)
	g, exists := h.groups[name]
	if !exists {
		return
	}

	g.mutex.Lock()
	delete(g.conns, c)
	empty := len(g.conns) == 0
	g.mutex.Unlock()

	if empty {
		delete(h.groups, name)
	}
}

// RemoveConn removes a connection from every group it joined. Called on
// disconnect; no explicit leave is required from the client.
func (h *Hub) RemoveConn(c Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for name, g := range h.groups {
		g.mutex.Lock()
		delete(g.conns, c)
		empty := len(g.conns) == 0
		g.mutex.Unlock()

		if empty {
			delete(h.groups, name)
		}
	}
}

// MemberCount returns the number of live connections in a group.
func (h *Hub) MemberCount(renkuID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	g, exists := h.groups[GroupName(renkuID)]
	if !exists {
		return 0
	}
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.conns)
}

// BroadcastRenku pushes a post-mutation snapshot to every member of the
// document's group, the mutating client included. Delivery is best effort;
// a failed write is logged and the rest of the group still receives it.
func (h *Hub) BroadcastRenku(r *models.Renku) {
	msg, err := json.Marshal(Message{
		Type:    EventRenkuUpdated,
		Payload: mustMarshal(r),
	})
	if err != nil {
		log.Printf("Error marshaling renku %s: %v", r.ID.Hex(), err)
		return
	}
	h.broadcast(r.ID.Hex(), msg)
}

// BroadcastDeleted notifies the group that its document is gone, then
// terminates the group. Later joins to the same id are mechanically fine
// but will never receive a snapshot.
func (h *Hub) BroadcastDeleted(renkuID string) {
	msg, err := json.Marshal(Message{
		Type:    EventRenkuDeleted,
		Payload: mustMarshal(map[string]string{"id": renkuID}),
	})
	if err != nil {
		log.Printf("Error marshaling delete notice for %s: %v", renkuID, err)
		return
	}
	h.broadcast(renkuID, msg)

	h.mutex.Lock()
	delete(h.groups, GroupName(renkuID))
	h.mutex.Unlock()
}

// SendRenku writes a snapshot to a single connection, used for the
// catch-up snapshot a late joiner receives.
func (h *Hub) SendRenku(c Conn, r *models.Renku) {
	msg, err := json.Marshal(Message{
		Type:    EventRenkuUpdated,
		Payload: mustMarshal(r),
	})
	if err != nil {
		log.Printf("Error marshaling renku %s: %v", r.ID.Hex(), err)
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
		log.Printf("Error sending snapshot: %v", err)
	}
}

func (h *Hub) broadcast(renkuID string, msg []byte) {
	h.mutex.RLock()
	g, exists := h.groups[GroupName(renkuID)]
	h.mutex.RUnlock()
	if !exists {
		return
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()
	for c := range g.conns {
		if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("Error broadcasting to group %s: %v", g.ID, err)
		}
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return json.RawMessage(b)
}
