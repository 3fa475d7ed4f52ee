package integration_tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabnotes/api"
	"collabnotes/config"
	"collabnotes/db"
	"collabnotes/realtime"
	"collabnotes/utils"
)

const testJwtSecret = "a-very-secure-secret-for-testing-only"

var httpClient = &http.Client{
	Timeout: 10 * time.Second,
}

// startTestServer wires the full application (REST + WebSocket) exactly like
// main.go and serves it in-process. Running in-process instead of shelling
// out to a built binary keeps the whole workflow on the race detector.
func startTestServer(t *testing.T) (*httptest.Server, *db.Database) {
	gin.SetMode(gin.TestMode)

	tempDir, err := os.MkdirTemp("", "collabnotes_integration_")
	require.NoError(t, err)

	cfg := &config.Config{
		DbFilePath:          filepath.Join(tempDir, "integration_db.json"),
		SaveInterval:        50 * time.Millisecond,
		EnableBackup:        false,
		JwtSecret:           testJwtSecret,
		TokenLifetime:       1 * time.Hour,
		BcryptCost:          4,
		ContentSaveDebounce: 100 * time.Millisecond,
	}

	database, err := db.NewDatabase(cfg)
	require.NoError(t, err)

	hub := realtime.NewHub(database, cfg.ContentSaveDebounce)
	authenticator := realtime.NewJWTAuthenticator(cfg, database)

	router := gin.New()
	router.RedirectTrailingSlash = false

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", func(c *gin.Context) { api.SignupHandler(c, database, cfg) })
		authGroup.POST("/login", func(c *gin.Context) { api.LoginHandler(c, database, cfg) })
	}

	authMiddleware := utils.AuthMiddleware(cfg)

	noteGroup := router.Group("/notes")
	noteGroup.Use(authMiddleware)
	{
		noteGroup.POST("", func(c *gin.Context) { api.CreateNoteHandler(c, database, cfg) })
		noteGroup.GET("", func(c *gin.Context) { api.GetNotesHandler(c, database, cfg) })
		noteGroup.GET("/:id", func(c *gin.Context) { api.GetNoteByIDHandler(c, database, cfg) })
		noteGroup.PUT("/:id", func(c *gin.Context) { api.UpdateNoteHandler(c, database, cfg) })
		noteGroup.DELETE("/:id", func(c *gin.Context) { api.DeleteNoteHandler(c, database, cfg) })

		shareGroup := noteGroup.Group("/:id/shares")
		{
			shareGroup.GET("", func(c *gin.Context) { api.GetSharesHandler(c, database, cfg) })
			shareGroup.PUT("", func(c *gin.Context) { api.ShareNoteHandler(c, database, cfg) })
			shareGroup.PUT("/:profile_id/toggle", func(c *gin.Context) { api.ToggleShareAccessHandler(c, database, cfg) })
			shareGroup.DELETE("/:profile_id", func(c *gin.Context) { api.RevokeShareHandler(c, database, cfg) })
		}
	}

	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, authenticator, c.Writer, c.Request)
	})

	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		hub.Close()
		if err := database.Close(); err != nil {
			t.Logf("Warning: error closing database: %v", err)
		}
		_ = os.RemoveAll(tempDir)
	})

	return server, database
}

// --- REST helpers ---

func doJSON(t *testing.T, method, url, token string, payload any) (*http.Response, map[string]interface{}) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	require.NoError(t, err)

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	decoded := map[string]interface{}{}
	if len(respBody) > 0 && respBody[0] == '{' {
		require.NoError(t, json.Unmarshal(respBody, &decoded), "Response was not a JSON object: %s", string(respBody))
	}
	return resp, decoded
}

// signupAndLogin registers a user through the API and returns their ID and token.
func signupAndLogin(t *testing.T, baseURL, email, password, firstName, lastName string) (id, token string) {
	t.Helper()

	resp, body := doJSON(t, "POST", baseURL+"/auth/signup", "", map[string]any{
		"email":      email,
		"password":   password,
		"first_name": firstName,
		"last_name":  lastName,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id = body["id"].(string)

	resp, body = doJSON(t, "POST", baseURL+"/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token = body["token"].(string)
	require.NotEmpty(t, token)
	return id, token
}

// --- WebSocket helpers ---

func dialCollab(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(realtime.Envelope{Event: event, Data: data})
	require.NoError(t, err)
	require.NoError(t, conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func receive(t *testing.T, conn *websocket.Conn, wantEvent string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err, "Expected a '%s' event", wantEvent)

	var envelope realtime.Envelope
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Equal(t, wantEvent, envelope.Event, "Unexpected event (data: %s)", string(envelope.Data))
	return envelope.Data
}

// TestCollaborationWorkflow walks the whole product flow end to end: two
// users sign up, one creates and shares a note, and both collaborate on it
// live over WebSocket while access changes take effect mid-session.
func TestCollaborationWorkflow(t *testing.T) {
	server, database := startTestServer(t)
	baseURL := server.URL

	// 1. Two users sign up and log in
	aliceID, aliceToken := signupAndLogin(t, baseURL, "alice@example.com", "alicePass1", "Alice", "Anders")
	bobID, bobToken := signupAndLogin(t, baseURL, "bob@example.com", "bobPassword1", "Bob", "Briggs")
	require.NotEqual(t, aliceID, bobID)

	// 2. Alice creates a note
	resp, noteBody := doJSON(t, "POST", baseURL+"/notes", aliceToken, map[string]any{
		"title":   "Project Plan",
		"content": "Phase one.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	noteID := noteBody["id"].(string)

	// 3. Bob cannot even see the note yet
	resp, _ = doJSON(t, "GET", baseURL+"/notes/"+noteID, bobToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// 4. Both connect to the realtime endpoint; Bob's join is refused
	// because the note is not shared with him
	aliceConn := dialCollab(t, server, aliceToken)
	bobConn := dialCollab(t, server, bobToken)

	send(t, bobConn, realtime.EventJoinRoom, realtime.RoomPayload{NoteID: noteID})
	data := receive(t, bobConn, realtime.EventOperationError)
	var opErr realtime.ErrorPayload
	require.NoError(t, json.Unmarshal(data, &opErr))
	assert.Equal(t, "You do not have access to this note", opErr.Message)

	// 5. Alice shares the note with Bob, view-only
	resp, _ = doJSON(t, "PUT", baseURL+"/notes/"+noteID+"/shares", aliceToken, map[string]any{
		"email":    "bob@example.com",
		"can_edit": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// 6. Alice joins her note's room, then Bob joins too
	send(t, aliceConn, realtime.EventJoinRoom, realtime.RoomPayload{NoteID: noteID})
	data = receive(t, aliceConn, realtime.EventRoster)
	var roster realtime.RosterPayload
	require.NoError(t, json.Unmarshal(data, &roster))
	require.Len(t, roster.Members, 1)

	send(t, bobConn, realtime.EventJoinRoom, realtime.RoomPayload{NoteID: noteID})
	data = receive(t, bobConn, realtime.EventRoster)
	require.NoError(t, json.Unmarshal(data, &roster))
	assert.Len(t, roster.Members, 2)

	data = receive(t, aliceConn, realtime.EventMemberJoined)
	var member realtime.MemberPayload
	require.NoError(t, json.Unmarshal(data, &member))
	assert.Equal(t, bobID, member.Member.ID)

	// 7. Bob tries to type with view-only access and is refused
	send(t, bobConn, realtime.EventEditContent, realtime.EditContentPayload{NoteID: noteID, Content: "Bob was here"})
	data = receive(t, bobConn, realtime.EventOperationError)
	require.NoError(t, json.Unmarshal(data, &opErr))
	assert.Equal(t, "You do not have permission to edit this note", opErr.Message)

	// 8. Alice grants Bob edit access mid-session; his very next edit works
	resp, toggleBody := doJSON(t, "PUT", baseURL+"/notes/"+noteID+"/shares/"+bobID+"/toggle", aliceToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, toggleBody["can_edit"])

	send(t, bobConn, realtime.EventEditContent, realtime.EditContentPayload{NoteID: noteID, Content: "Phase two, drafted by Bob."})
	data = receive(t, aliceConn, realtime.EventContentUpdated)
	var contentUpdate realtime.ContentUpdatedPayload
	require.NoError(t, json.Unmarshal(data, &contentUpdate))
	assert.Equal(t, "Phase two, drafted by Bob.", contentUpdate.Content)
	assert.Equal(t, bobID, contentUpdate.UpdatedBy.ID)

	// 9. The content edit reaches disk after the debounce window
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if note, found := database.GetNoteByID(noteID); found && note.Content == "Phase two, drafted by Bob." {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	note, found := database.GetNoteByID(noteID)
	require.True(t, found)
	assert.Equal(t, "Phase two, drafted by Bob.", note.Content)
	assert.Equal(t, "Project Plan", note.Title, "Title must be untouched by a content edit")

	// 10. Bob's connection drops; Alice sees him leave
	bobConn.Close()
	data = receive(t, aliceConn, realtime.EventMemberLeft)
	require.NoError(t, json.Unmarshal(data, &member))
	assert.Equal(t, bobID, member.Member.ID)
}
