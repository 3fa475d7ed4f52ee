package main

import (
	"collabnotes/api"
	"collabnotes/config"
	"collabnotes/db"
	"collabnotes/realtime"
	"collabnotes/utils"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           CollabNotes API
// @version         1.0.0

// @description     ## CollabNotes API
// @description
// @description     **Purpose:** A collaborative note server. Users register, create notes, and share them with other users as view-only or editable. The REST API covers accounts, note CRUD, and share management; the real collaboration happens over the WebSocket endpoint.
// @description
// @description     **Realtime collaboration (`GET /ws`):**
// @description     Connect with your bearer token (Authorization header, or `?token=` for browser clients). Every message in either direction is a JSON envelope `{"event": "...", "data": {...}}`.
// @description
// @description     Client events: `join-room {note_id}`, `leave-room {note_id}`, `edit-content {note_id, content}`, `edit-title {note_id, title}`.
// @description
// @description     Server events: `roster` (sent to a joiner: everyone currently in the room), `member-joined` / `member-left` (presence changes, sent to the other members), `content-updated` / `title-updated` (another member's edit, with who made it), `operation-error` (sent only to the session whose request failed).
// @description
// @description     Content edits are broadcast immediately but persisted only after a quiet period (default 2s), so fast typing costs one database write. Title edits persist on every event. Concurrent edits resolve last-writer-wins; there is no merge.

// @license.name  MIT

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.jwt BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("CRITICAL: Failed to load configuration: %v", err)
	}

	// --- Database ---
	database, err := db.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize database: %v", err)
	}

	// --- Realtime hub ---
	hub := realtime.NewHub(database, cfg.ContentSaveDebounce)
	authenticator := realtime.NewJWTAuthenticator(cfg, database)

	// --- Gin Router Setup ---
	router := gin.Default()

	// --- Public Routes (No Auth Required) ---
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", func(c *gin.Context) {
			api.SignupHandler(c, database, cfg)
		})
		authGroup.POST("/login", func(c *gin.Context) {
			api.LoginHandler(c, database, cfg)
		})
	}

	// --- Protected Routes (Auth Required) ---
	authMiddleware := utils.AuthMiddleware(cfg)

	// Profile Routes
	profileGroup := router.Group("/profiles")
	profileGroup.Use(authMiddleware)
	{
		profileGroup.GET("/me", func(c *gin.Context) {
			api.GetProfileMeHandler(c, database, cfg)
		})
		profileGroup.PUT("/me", func(c *gin.Context) {
			api.UpdateProfileMeHandler(c, database, cfg)
		})
	}

	// Note Routes
	noteGroup := router.Group("/notes")
	noteGroup.Use(authMiddleware)
	{
		noteGroup.POST("", func(c *gin.Context) {
			api.CreateNoteHandler(c, database, cfg)
		})
		noteGroup.GET("", func(c *gin.Context) {
			api.GetNotesHandler(c, database, cfg)
		})
		noteGroup.GET("/:id", func(c *gin.Context) {
			api.GetNoteByIDHandler(c, database, cfg)
		})
		noteGroup.PUT("/:id", func(c *gin.Context) {
			api.UpdateNoteHandler(c, database, cfg)
		})
		noteGroup.DELETE("/:id", func(c *gin.Context) {
			api.DeleteNoteHandler(c, database, cfg)
		})

		// Sharing Sub-routes (nested under /notes/{id})
		shareGroup := noteGroup.Group("/:id/shares")
		{
			shareGroup.GET("", func(c *gin.Context) {
				api.GetSharesHandler(c, database, cfg)
			})
			shareGroup.PUT("", func(c *gin.Context) {
				api.ShareNoteHandler(c, database, cfg)
			})
			shareGroup.PUT("/:profile_id/toggle", func(c *gin.Context) {
				api.ToggleShareAccessHandler(c, database, cfg)
			})
			shareGroup.DELETE("/:profile_id", func(c *gin.Context) {
				api.RevokeShareHandler(c, database, cfg)
			})
		}
	}

	// Logout route (needs auth middleware)
	router.POST("/auth/logout", authMiddleware, func(c *gin.Context) {
		api.LogoutHandler(c, database, cfg)
	})

	// --- WebSocket Route ---
	// Authentication happens inside ServeWs, before the upgrade; the gin
	// auth middleware is bypassed so browser clients can pass ?token=.
	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, authenticator, c.Writer, c.Request)
	})

	// --- Swagger Route ---
	// Serve the static swagger.json and point the UI at it.
	router.StaticFS("/docs", http.Dir("docs"))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/docs/swagger.json")))

	// --- Graceful Shutdown ---
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("INFO: Shutting down server...")
		// Flush pending collaborative saves before the database closes so
		// the last edits before shutdown are not lost.
		hub.Close()
		if err := database.Close(); err != nil {
			log.Printf("ERROR: Failed to close database cleanly: %v", err)
		}
		os.Exit(0)
	}()

	// --- Start Server ---
	listenAddr := fmt.Sprintf("%s:%s", cfg.ListenAddress, cfg.ListenPort)
	log.Printf("INFO: Starting server on %s", listenAddr)

	server := &http.Server{
		Addr:    listenAddr,
		Handler: router,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("CRITICAL: Server failed to start: %v", err)
	}
}
