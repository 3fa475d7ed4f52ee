// Package realtime implements the collaborative editing core: authenticated
// WebSocket sessions join per-note rooms, see each other's presence, and
// receive each other's edits live while persistence is coalesced in the
// background.
package realtime

import (
	"encoding/json"
	"log"

	"collabnotes/models"
)

// Inbound event names (client -> server).
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventEditContent = "edit-content"
	EventEditTitle   = "edit-title"
)

// Outbound event names (server -> client).
const (
	EventRoster         = "roster"
	EventMemberJoined   = "member-joined"
	EventMemberLeft     = "member-left"
	EventContentUpdated = "content-updated"
	EventTitleUpdated   = "title-updated"
	EventOperationError = "operation-error"
)

// Envelope is the wire framing for every event in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RoomPayload is the body of join-room and leave-room requests.
type RoomPayload struct {
	NoteID string `json:"note_id"`
}

// EditContentPayload is the body of an edit-content request.
type EditContentPayload struct {
	NoteID  string `json:"note_id"`
	Content string `json:"content"`
}

// EditTitlePayload is the body of an edit-title request.
type EditTitlePayload struct {
	NoteID string `json:"note_id"`
	Title  string `json:"title"`
}

// RosterPayload lists every current member of a room, including the
// recipient. Sent only to a session that just joined.
type RosterPayload struct {
	NoteID  string             `json:"note_id"`
	Members []models.Principal `json:"members"`
}

// MemberPayload announces a single member joining or leaving a room.
type MemberPayload struct {
	NoteID string           `json:"note_id"`
	Member models.Principal `json:"member"`
}

// ContentUpdatedPayload carries a live content edit to the other room members.
type ContentUpdatedPayload struct {
	NoteID    string           `json:"note_id"`
	Content   string           `json:"content"`
	UpdatedBy models.Principal `json:"updated_by"`
}

// TitleUpdatedPayload carries a live title edit to the other room members.
type TitleUpdatedPayload struct {
	NoteID    string           `json:"note_id"`
	Title     string           `json:"title"`
	UpdatedBy models.Principal `json:"updated_by"`
}

// ErrorPayload is sent only to the session whose request failed.
type ErrorPayload struct {
	Message string `json:"message"`
}

// encodeEvent marshals an outbound event into its wire envelope.
// A marshalling failure is logged and yields nil, which sessions drop.
func encodeEvent(event string, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: Failed to marshal payload for event '%s': %v", event, err)
		return nil
	}
	envelope, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		log.Printf("ERROR: Failed to marshal envelope for event '%s': %v", event, err)
		return nil
	}
	return envelope
}
