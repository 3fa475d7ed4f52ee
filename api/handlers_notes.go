package api

import (
	"collabnotes/config"
	"collabnotes/db"
	"collabnotes/models"
	"collabnotes/utils"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// --- Create Note ---

// CreateNoteRequest defines the expected body for creating a note.
type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// CreateNoteHandler handles the creation of a new note.
// @Summary      Create a New Note
// @Description  Creates a note owned by the authenticated user. Both title and content may be empty; the collaborative editor fills them in live.
// @Tags         Notes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        note body CreateNoteRequest true "The note's initial title and content."
// @Success      201  {object}  models.Note "Note created. The response contains the new note, including its unique ID."
// @Failure      400  {object}  utils.APIError "Bad Request: The request body is not valid JSON."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      500  {object}  utils.APIError "Internal Server Error."
// @Router       /notes [post]
func CreateNoteHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	userID, ok := authUserID(c)
	if !ok {
		return
	}

	var req CreateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	note := models.Note{
		OwnerID: userID,
		Title:   req.Title,
		Content: req.Content,
	}

	created, err := database.CreateNote(note)
	if err != nil {
		utils.GinInternalServerError(c, fmt.Sprintf("Failed to create note: %v", err))
		return
	}

	c.JSON(http.StatusCreated, created)
}

// --- List Notes ---

// GetNotesHandler retrieves every note the authenticated user can see.
// @Summary      List Your Notes
// @Description  Returns the notes the authenticated user owns plus the notes shared with them, sorted by last modified date (newest first).
// @Tags         Notes
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   models.Note "The accessible notes, newest-modified first."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      500  {object}  utils.APIError "Internal Server Error."
// @Router       /notes [get]
func GetNotesHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	userID, ok := authUserID(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, database.GetNotesForProfile(userID))
}

// --- Get Note by ID ---

// GetNoteByIDHandler retrieves a single note by its ID.
// @Summary      Get a Specific Note
// @Description  Retrieves one note. Only the owner and users the note is shared with can see it.
// @Tags         Notes
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "The note's unique identifier."
// @Success      200  {object}  models.Note "The note."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      403  {object}  utils.APIError "Forbidden: The note is not shared with you."
// @Failure      404  {object}  utils.APIError "Not Found: No note exists with the specified ID."
// @Router       /notes/{id} [get]
func GetNoteByIDHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	userID, ok := authUserID(c)
	if !ok {
		return
	}
	noteID := c.Param("id")

	note, found := database.GetNoteByID(noteID)
	if !found {
		utils.GinNotFound(c, fmt.Sprintf("Note with ID '%s' not found.", noteID))
		return
	}

	if !note.CanView(userID) {
		utils.GinForbidden(c, "You do not have access to this note.")
		return
	}

	c.JSON(http.StatusOK, note)
}

// --- Update Note ---

// UpdateNoteRequest defines the expected body for updating a note.
type UpdateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UpdateNoteHandler replaces a note's title and content.
// @Summary      Update a Note
// @Description  Replaces the note's title and content. The owner and shared users with edit access may update; concurrent updates resolve last-writer-wins.
// @Tags         Notes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string            true  "The note's unique identifier."
// @Param        note body      UpdateNoteRequest true  "The new title and content."
// @Success      200  {object}  models.Note "The updated note."
// @Failure      400  {object}  utils.APIError "Bad Request: The request body is not valid JSON."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      403  {object}  utils.APIError "Forbidden: You do not have edit access to this note."
// @Failure      404  {object}  utils.APIError "Not Found: No note exists with the specified ID."
// @Router       /notes/{id} [put]
func UpdateNoteHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	userID, ok := authUserID(c)
	if !ok {
		return
	}
	noteID := c.Param("id")

	var req UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	// Access is checked against a fresh read on every update; an earlier
	// check is never trusted.
	note, found := database.GetNoteByID(noteID)
	if !found {
		utils.GinNotFound(c, fmt.Sprintf("Note with ID '%s' not found.", noteID))
		return
	}
	if !note.CanEdit(userID) {
		utils.GinForbidden(c, "You do not have permission to edit this note.")
		return
	}

	updated, err := database.UpdateNoteFields(noteID, db.NoteFieldPatch{
		Title:   &req.Title,
		Content: &req.Content,
	})
	if err != nil {
		// Deleted between the read and the write.
		utils.GinNotFound(c, fmt.Sprintf("Note with ID '%s' not found.", noteID))
		return
	}

	c.JSON(http.StatusOK, updated)
}

// --- Delete Note ---

// DeleteNoteHandler deletes a note.
// @Summary      Delete a Note
// @Description  Permanently deletes a note, along with its share list. Only the owner can delete a note; shared users with edit access cannot.
// @Tags         Notes
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "The note's unique identifier."
// @Success      200  {object}  map[string]string "Note deleted."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      403  {object}  utils.APIError "Forbidden: Only the owner can delete a note."
// @Failure      404  {object}  utils.APIError "Not Found: No note exists with the specified ID."
// @Router       /notes/{id} [delete]
func DeleteNoteHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	userID, ok := authUserID(c)
	if !ok {
		return
	}
	noteID := c.Param("id")

	note, found := database.GetNoteByID(noteID)
	if !found {
		utils.GinNotFound(c, fmt.Sprintf("Note with ID '%s' not found.", noteID))
		return
	}
	if note.OwnerID != userID {
		utils.GinForbidden(c, "Only the note owner can delete it.")
		return
	}

	if err := database.DeleteNote(noteID); err != nil {
		utils.GinNotFound(c, fmt.Sprintf("Note with ID '%s' not found.", noteID))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Note deleted successfully."})
}
