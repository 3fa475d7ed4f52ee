package realtime

import (
	"log"
	"sync"
	"time"

	"collabnotes/db"
	"collabnotes/models"
)

// DocumentStore is the persistence boundary the hub depends on. Satisfied
// by db.Database.
type DocumentStore interface {
	GetNoteByID(id string) (models.Note, bool)
	UpdateNoteFields(id string, patch db.NoteFieldPatch) (models.Note, error)
}

// Hub is the room broadcaster: it owns room membership, fans edit events
// out to room members, and schedules coalesced persistence writes.
//
// All membership and session state is mutated under a single mutex, so each
// inbound event runs to completion before the next one is processed and
// per-room event ordering is preserved. Persistence scheduling happens
// inside the same critical section as the matching broadcast, which keeps
// the pending save value in step with the last edit the room saw. Only the
// store read that gates each operation happens outside the lock; access is
// re-evaluated from that fresh snapshot on every join and edit precisely
// because state can change across the boundary.
type Hub struct {
	mu       sync.Mutex
	store    DocumentStore
	registry *Registry
	sessions map[string]*Session // all connected sessions by session ID

	saves        *Scheduler
	contentDelay time.Duration
}

// NewHub creates a hub persisting through store. Content edits are written
// after contentDelay of quiet; title edits are written immediately.
func NewHub(store DocumentStore, contentDelay time.Duration) *Hub {
	h := &Hub{
		store:        store,
		registry:     NewRegistry(),
		sessions:     make(map[string]*Session),
		contentDelay: contentDelay,
	}
	h.saves = NewScheduler(h.persistField)
	return h
}

// persistField writes the latest value of one note field to the store.
// A failure (including the note having been deleted in the meantime) is
// logged and never surfaced to any client; room state is unaffected.
func (h *Hub) persistField(noteID string, field FieldKind, value string) {
	patch := db.NoteFieldPatch{}
	switch field {
	case FieldContent:
		patch.Content = &value
	case FieldTitle:
		patch.Title = &value
	}

	if _, err := h.store.UpdateNoteFields(noteID, patch); err != nil {
		log.Printf("ERROR: Failed to persist %s for note %s: %v", field, noteID, err)
		return
	}
	log.Printf("INFO: Note %s %s saved to database", noteID, field)
}

// Register adds a freshly authenticated session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.ID] = s
}

// JoinRoom handles a join-room request: the note must exist and the
// session's principal must be allowed to view it. On success the other
// room members learn about the new member and the joiner receives the full
// roster (including itself) instead of a member-joined echo.
func (h *Hub) JoinRoom(s *Session, noteID string) {
	note, found := h.store.GetNoteByID(noteID)
	if !found {
		s.sendError("Note not found")
		return
	}
	if !note.CanView(s.Principal.ID) {
		s.sendError("You do not have access to this note")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	joined := h.registry.Join(noteID, s.ID, s.Principal)
	if joined {
		h.broadcastToRoom(noteID, s, encodeEvent(EventMemberJoined, MemberPayload{
			NoteID: noteID,
			Member: s.Principal,
		}))
		log.Printf("INFO: User %s joined note %s", s.Principal.Email, noteID)
	}

	// Rejoining is idempotent: membership is unchanged and peers see no
	// duplicate member-joined, but the joiner still gets a current roster.
	s.enqueue(encodeEvent(EventRoster, RosterPayload{
		NoteID:  noteID,
		Members: h.registry.Members(noteID),
	}))
}

// LeaveRoom removes the session from a room. Leaving a room the session is
// not a member of is a no-op: no error, no notification. Remaining members
// are told about the departure; a drained room is destroyed silently.
func (h *Hub) LeaveRoom(s *Session, noteID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	principal, wasMember, remaining := h.registry.Leave(noteID, s.ID)
	if !wasMember {
		return
	}
	if remaining > 0 {
		h.broadcastToRoom(noteID, s, encodeEvent(EventMemberLeft, MemberPayload{
			NoteID: noteID,
			Member: principal,
		}))
	}
	log.Printf("INFO: User %s left note %s", s.Principal.Email, noteID)
}

// EditContent handles a live content edit. Edit rights are re-checked
// against a fresh snapshot on every event; a revoked share takes effect on
// the very next keystroke. The new value is fanned out to the other room
// members immediately, while persistence waits for the debounce window.
func (h *Hub) EditContent(s *Session, noteID, content string) {
	note, found := h.store.GetNoteByID(noteID)
	if !found {
		// Note deleted concurrently; drop without disturbing the session.
		return
	}
	if !note.CanEdit(s.Principal.ID) {
		s.sendError("You do not have permission to edit this note")
		return
	}

	h.mu.Lock()
	h.broadcastToRoom(noteID, s, encodeEvent(EventContentUpdated, ContentUpdatedPayload{
		NoteID:    noteID,
		Content:   content,
		UpdatedBy: s.Principal,
	}))
	// Scheduled under the same lock as the broadcast: the pending value
	// always tracks the edit the room saw last.
	h.saves.Schedule(noteID, FieldContent, content, h.contentDelay)
	h.mu.Unlock()
}

// EditTitle handles a live title edit. Same authorization and fan-out path
// as content, but the title is persisted on every event with no debounce.
func (h *Hub) EditTitle(s *Session, noteID, title string) {
	note, found := h.store.GetNoteByID(noteID)
	if !found {
		return
	}
	if !note.CanEdit(s.Principal.ID) {
		s.sendError("You do not have permission to edit this note")
		return
	}

	h.mu.Lock()
	h.broadcastToRoom(noteID, s, encodeEvent(EventTitleUpdated, TitleUpdatedPayload{
		NoteID:    noteID,
		Title:     title,
		UpdatedBy: s.Principal,
	}))
	h.saves.Schedule(noteID, FieldTitle, title, 0)
	h.mu.Unlock()
}

// Disconnect removes the session from the hub and from every room it
// occupies, notifying each affected room's remaining members. Pending save
// timers are left untouched: they track note state, not session state, and
// must still fire so the last edit before the disconnect is not lost.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, connected := h.sessions[s.ID]; !connected {
		return
	}
	delete(h.sessions, s.ID)

	for _, noteID := range h.registry.RemoveFromAll(s.ID) {
		h.broadcastToRoom(noteID, s, encodeEvent(EventMemberLeft, MemberPayload{
			NoteID: noteID,
			Member: s.Principal,
		}))
	}

	s.close()
	log.Printf("INFO: User disconnected: %s", s.Principal.Email)
}

// Close flushes every pending save. Call on shutdown, after the listener
// has stopped accepting events.
func (h *Hub) Close() {
	h.saves.FlushAll()
}

// broadcastToRoom enqueues data to every member of the room except the
// originating session. Callers must hold h.mu; enqueue never blocks, so the
// per-room delivery order is exactly the order events were processed in.
func (h *Hub) broadcastToRoom(noteID string, exclude *Session, data []byte) {
	for _, sessionID := range h.registry.MemberSessionIDs(noteID) {
		if exclude != nil && sessionID == exclude.ID {
			continue
		}
		if sess, ok := h.sessions[sessionID]; ok {
			sess.enqueue(data)
		}
	}
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// RoomCount returns the number of rooms with at least one member.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.RoomCount()
}

// PendingSaves returns the number of outstanding debounced writes.
func (h *Hub) PendingSaves() int {
	return h.saves.PendingCount()
}
