package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"collabnotes/models"
	"collabnotes/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Session is a single live connection acting as one principal. A session
// starts in zero rooms and may join any number of them, though the UI only
// ever keeps one open at a time.
type Session struct {
	ID        string
	Principal models.Principal

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

// NewSession creates a session for an authenticated principal. conn may be
// nil for sessions driven directly in tests.
func NewSession(hub *Hub, principal models.Principal, conn *websocket.Conn) *Session {
	return &Session{
		ID:        utils.GenerateDashlessUUID(),
		Principal: principal,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
}

// Outbound exposes the session's outbound event stream.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// enqueue hands an encoded event to the writer without ever blocking the
// hub. A session whose buffer is full misses the event; the connection's
// ping/pong deadline will reap it if it has actually stalled.
func (s *Session) enqueue(data []byte) {
	if data == nil {
		return
	}
	select {
	case s.send <- data:
	default:
		log.Printf("WARN: Dropping event for session %s (%s): send buffer full", s.ID, s.Principal.Email)
	}
}

// sendError delivers an operation-error event to this session only.
func (s *Session) sendError(message string) {
	s.enqueue(encodeEvent(EventOperationError, ErrorPayload{Message: message}))
}

// close shuts the outbound channel exactly once, which stops the writePump.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.send)
	})
}

// bearerCredential extracts the client's credential from the Authorization
// header, falling back to the token query parameter (browser WebSocket
// clients cannot set headers).
func bearerCredential(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return r.URL.Query().Get("token")
}

// ServeWs authenticates the connection and, on success, upgrades it and
// starts the session's read and write pumps. An invalid or missing
// credential rejects the connection with 401 before the upgrade; no partial
// session is ever created.
func ServeWs(hub *Hub, auth Authenticator, w http.ResponseWriter, r *http.Request) {
	principal, err := auth.Authenticate(bearerCredential(r))
	if err != nil {
		log.Printf("WARN: WebSocket connection rejected: %v", err)
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("ERROR: WebSocket upgrade failed:", err)
		return
	}

	session := NewSession(hub, principal, conn)
	hub.Register(session)
	log.Printf("INFO: User connected: %s (%s)", principal.Email, principal.ID)

	go session.writePump()
	go session.readPump()
}

// readPump reads inbound events until the connection drops, then tears the
// session down through the hub.
func (s *Session) readPump() {
	defer func() {
		s.hub.Disconnect(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARN: WebSocket error for %s: %v", s.Principal.Email, err)
			}
			break
		}
		s.dispatch(message)
	}
}

// dispatch routes one inbound envelope to the matching hub operation.
// A malformed payload earns the sender a scoped error, never a dropped
// connection.
func (s *Session) dispatch(raw []byte) {
	if !gjson.ValidBytes(raw) {
		s.sendError("Malformed event: not valid JSON")
		return
	}

	event := gjson.GetBytes(raw, "event")
	if !event.Exists() || event.Type != gjson.String {
		s.sendError("Malformed event: missing event name")
		return
	}
	data := gjson.GetBytes(raw, "data").Raw
	if data == "" {
		data = "{}"
	}

	switch event.String() {
	case EventJoinRoom:
		var p RoomPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil || p.NoteID == "" {
			s.sendError("Malformed join-room payload")
			return
		}
		s.hub.JoinRoom(s, p.NoteID)

	case EventLeaveRoom:
		var p RoomPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil || p.NoteID == "" {
			s.sendError("Malformed leave-room payload")
			return
		}
		s.hub.LeaveRoom(s, p.NoteID)

	case EventEditContent:
		var p EditContentPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil || p.NoteID == "" {
			s.sendError("Malformed edit-content payload")
			return
		}
		s.hub.EditContent(s, p.NoteID, p.Content)

	case EventEditTitle:
		var p EditTitlePayload
		if err := json.Unmarshal([]byte(data), &p); err != nil || p.NoteID == "" {
			s.sendError("Malformed edit-title payload")
			return
		}
		s.hub.EditTitle(s, p.NoteID, p.Title)

	default:
		s.sendError("Unknown event: " + event.String())
	}
}

// writePump pushes outbound events to the peer and keeps the connection
// alive with pings. It exits when the session is closed or a write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
