package runtime

import (
	"sync"

	"gameroom-lab/contract"
)

type set map[string]struct{}

// Registry tracks which sink serves which live connection and which
// connections are joined to which room. It is the only structure shared
// between room workers and the transport, hence the lock.
type Registry struct {
	mu          sync.RWMutex
	sinks       map[string]contract.EventSink // connection id -> sink
	roomMembers map[string]set                // room code -> connection ids
	memberRooms map[string]set                // connection id -> room codes
}

func NewRegistry() *Registry {
	return &Registry{
		sinks:       make(map[string]contract.EventSink),
		roomMembers: make(map[string]set),
		memberRooms: make(map[string]set),
	}
}

// SinksForRoom resolves all active sinks of one room's connections.
// Returns nil when the room has no members.
func (r *Registry) SinksForRoom(roomCode string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[roomCode]
	if !ok {
		return nil
	}
	var active []contract.EventSink
	for connID := range members {
		if sink, exists := r.sinks[connID]; exists {
			active = append(active, sink)
		}
	}
	return active
}

// SinksForConnections resolves sinks for an explicit connection list,
// skipping connections that already went away.
func (r *Registry) SinksForConnections(connIDs []string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []contract.EventSink
	for _, connID := range connIDs {
		if sink, exists := r.sinks[connID]; exists {
			active = append(active, sink)
		}
	}
	return active
}

// Connect registers a connection's sink. Happens once per websocket open,
// before any room join, so rejected joins can still be answered.
func (r *Registry) Connect(connID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[connID] = sink
}

// Disconnect drops the connection's sink and removes it from every room it
// was joined to. Empty room sets are removed so the map does not leak.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, connID)

	for roomCode := range r.memberRooms[connID] {
		if members, ok := r.roomMembers[roomCode]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.roomMembers, roomCode)
			}
		}
	}
	delete(r.memberRooms, connID)
}

// JoinRoom adds the connection to a room's audience.
func (r *Registry) JoinRoom(connID, roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomMembers[roomCode]; !ok {
		r.roomMembers[roomCode] = make(set)
	}
	r.roomMembers[roomCode][connID] = struct{}{}

	if _, ok := r.memberRooms[connID]; !ok {
		r.memberRooms[connID] = make(set)
	}
	r.memberRooms[connID][roomCode] = struct{}{}
}

// LeaveRoom removes the connection from one room's audience while keeping
// its sink alive for further traffic.
func (r *Registry) LeaveRoom(connID, roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.roomMembers[roomCode]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.roomMembers, roomCode)
		}
	}
	if rooms, ok := r.memberRooms[connID]; ok {
		delete(rooms, roomCode)
		if len(rooms) == 0 {
			delete(r.memberRooms, connID)
		}
	}
}

// PurgeRoom drops a dead room's whole audience in one sweep. Sinks stay
// registered; only the membership goes.
func (r *Registry) PurgeRoom(roomCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for connID := range r.roomMembers[roomCode] {
		if rooms, ok := r.memberRooms[connID]; ok {
			delete(rooms, roomCode)
			if len(rooms) == 0 {
				delete(r.memberRooms, connID)
			}
		}
	}
	delete(r.roomMembers, roomCode)
}
