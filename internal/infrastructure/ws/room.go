package ws

import (
	"log"
	"sync"
)

// RoomManager tracks which connections are attached to which room and fans
// outbound messages out to them. History lives in the canvas log, not here;
// this is delivery plumbing only.
type RoomManager struct {
	rooms map[string]map[string]*Client // roomID -> connectionID -> client
	mu    sync.RWMutex
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]map[string]*Client),
	}
}

func (rm *RoomManager) AddClient(cl *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	room, ok := rm.rooms[cl.RoomID()]
	if !ok {
		room = make(map[string]*Client)
		rm.rooms[cl.RoomID()] = room
	}
	room[cl.ID] = cl
}

func (rm *RoomManager) RemoveClient(cl *Client) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	roomID := cl.RoomID()
	if room, ok := rm.rooms[roomID]; ok {
		// A reconnect may have replaced this entry; only remove our own.
		if existing, ok := room[cl.ID]; ok && existing == cl {
			delete(room, cl.ID)
			if len(room) == 0 {
				delete(rm.rooms, roomID)
			}
		}
	}
}

// Broadcast delivers to every connection in the room. Delivery is an
// enqueue into each client's send buffer; slow clients get dropped rather
// than stalling the room.
func (rm *RoomManager) Broadcast(roomID string, msg *WSMessage) {
	rm.broadcast(roomID, msg, "")
}

// BroadcastExcept delivers to everyone but the named connection. Used for
// typing indicators, which are never echoed to the sender.
func (rm *RoomManager) BroadcastExcept(roomID, exceptConnID string, msg *WSMessage) {
	rm.broadcast(roomID, msg, exceptConnID)
}

func (rm *RoomManager) broadcast(roomID string, msg *WSMessage, exceptConnID string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, ok := rm.rooms[roomID]
	if !ok {
		return
	}

	for id, cl := range room {
		if id == exceptConnID {
			continue
		}
		if !cl.trySend(msg) {
			// Client is too slow – drop the message
			log.Printf("client %s buffer full, dropping message", cl.ID)
		}
	}
}
