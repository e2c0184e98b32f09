/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package rooms

import (
	"sync"

	"github.com/Seednode/versus/games"
)

// Registry maps room ids to rooms. Its lock only guards the map; commands
// on a room serialize on the room's own lock, so rooms never wait on each
// other.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	rng   games.Rand
}

func NewRegistry(rng games.Rand) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		rng:   rng,
	}
}

// GetOrCreate returns the room for id, creating it with variant's starting
// state if absent. An existing room is returned unchanged whatever variant is
// passed. The bool reports whether the room was created by this call.
func (reg *Registry) GetOrCreate(id string, variant games.Variant) (*Room, bool, error) {
	if room, ok := reg.Get(id); ok {
		return room, false, nil
	}

	// Boards are built outside the lock; fleet placement is the slow part.
	rules, err := games.Lookup(variant, reg.rng)
	if err != nil {
		return nil, false, err
	}
	board, err := rules.NewBoard()
	if err != nil {
		return nil, false, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if room, ok := reg.rooms[id]; ok {
		return room, false, nil
	}

	room := newRoom(id, rules, board)
	reg.rooms[id] = room

	return room, true, nil
}

func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[id]
	return room, ok
}

// Remove marks the room for id reclaimed and drops it. Callers still holding
// the room see the Reclaimed status and treat the id as free.
func (reg *Registry) Remove(id string) {
	room, ok := reg.Get(id)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	room.status = Reclaimed
	room.stopReclaimLocked()
	reg.removeRoom(room)
}

// removeRoom deletes id only while it still maps to room, so a stale timer
// cannot delete a newer room that reused the id.
func (reg *Registry) removeRoom(room *Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.rooms[room.id] != room {
		return false
	}
	delete(reg.rooms, room.id)
	return true
}

func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.rooms)
}

// list copies the current rooms so callers can lock each one without
// holding the registry lock.
func (reg *Registry) list() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		out = append(out, room)
	}
	return out
}
