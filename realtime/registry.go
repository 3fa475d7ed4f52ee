package realtime

import (
	"collabnotes/models"
)

// Registry tracks which sessions are present in which rooms. A room is
// keyed by note ID and exists only while it has at least one member.
//
// The Registry is deliberately not self-locking: the Hub is its single
// writer and serializes all access under its own mutex.
type Registry struct {
	rooms map[string]*room
}

// room holds one note's live membership. The order slice preserves join
// order for rosters; only membership itself matters for correctness.
type room struct {
	members map[string]models.Principal // session ID -> principal
	order   []string                    // session IDs in join order
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join adds a session to a room, creating the room if needed.
// Returns true if the session was newly added, false if it was already a
// member (in which case nothing changes).
func (r *Registry) Join(noteID, sessionID string, principal models.Principal) bool {
	rm, ok := r.rooms[noteID]
	if !ok {
		rm = &room{members: make(map[string]models.Principal)}
		r.rooms[noteID] = rm
	}
	if _, exists := rm.members[sessionID]; exists {
		return false
	}
	rm.members[sessionID] = principal
	rm.order = append(rm.order, sessionID)
	return true
}

// Leave removes a session from a room. The room is deleted once its last
// member leaves. Returns the member's principal, whether the session was
// actually a member, and how many members remain.
func (r *Registry) Leave(noteID, sessionID string) (models.Principal, bool, int) {
	rm, ok := r.rooms[noteID]
	if !ok {
		return models.Principal{}, false, 0
	}
	principal, member := rm.members[sessionID]
	if !member {
		return models.Principal{}, false, len(rm.members)
	}
	delete(rm.members, sessionID)
	for i, id := range rm.order {
		if id == sessionID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	if len(rm.members) == 0 {
		delete(r.rooms, noteID)
	}
	return principal, true, len(rm.members)
}

// Members returns a snapshot of a room's principals in join order.
// Returns an empty slice for an unknown room.
func (r *Registry) Members(noteID string) []models.Principal {
	rm, ok := r.rooms[noteID]
	if !ok {
		return []models.Principal{}
	}
	members := make([]models.Principal, 0, len(rm.order))
	for _, sessionID := range rm.order {
		members = append(members, rm.members[sessionID])
	}
	return members
}

// MemberSessionIDs returns the session IDs currently in a room, in join order.
func (r *Registry) MemberSessionIDs(noteID string) []string {
	rm, ok := r.rooms[noteID]
	if !ok {
		return nil
	}
	ids := make([]string, len(rm.order))
	copy(ids, rm.order)
	return ids
}

// IsMember reports whether the session is currently in the room.
func (r *Registry) IsMember(noteID, sessionID string) bool {
	rm, ok := r.rooms[noteID]
	if !ok {
		return false
	}
	_, member := rm.members[sessionID]
	return member
}

// RemoveFromAll removes a session from every room it belongs to and returns
// the note IDs of the rooms it actually left. Drained rooms are deleted.
func (r *Registry) RemoveFromAll(sessionID string) []string {
	var left []string
	for noteID, rm := range r.rooms {
		if _, member := rm.members[sessionID]; member {
			r.Leave(noteID, sessionID)
			left = append(left, noteID)
		}
	}
	return left
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	return len(r.rooms)
}
