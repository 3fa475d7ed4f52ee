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

// checkNoteOwner verifies the requester owns the note before a share
// operation. On failure the error response has already been sent.
func checkNoteOwner(c *gin.Context, database *db.Database, noteID string) (models.Note, bool) {
	userID, ok := authUserID(c)
	if !ok {
		return models.Note{}, false
	}

	note, found := database.GetNoteByID(noteID)
	if !found {
		utils.GinNotFound(c, fmt.Sprintf("Note with ID '%s' not found.", noteID))
		return models.Note{}, false
	}

	if note.OwnerID != userID {
		utils.GinForbidden(c, "Only the note owner can manage shares.")
		return models.Note{}, false
	}

	return note, true
}

// --- Get Shares ---

// ShareInfo pairs a share entry with the profile it grants access to.
type ShareInfo struct {
	Profile models.Principal `json:"profile"`
	CanEdit bool             `json:"can_edit"`
}

// GetSharesHandler lists who a note is shared with.
// @Summary      See Who a Note is Shared With
// @Description  Lists the users a note has been shared with, along with each user's access level. Only the owner can see the share list.
// @Tags         Sharing
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "The note's unique identifier."
// @Success      200  {array}   ShareInfo "The users the note is shared with."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      403  {object}  utils.APIError "Forbidden: Only the owner can view the share list."
// @Failure      404  {object}  utils.APIError "Not Found: No note exists with the specified ID."
// @Router       /notes/{id}/shares [get]
func GetSharesHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	noteID := c.Param("id")

	note, ok := checkNoteOwner(c, database, noteID)
	if !ok {
		return
	}

	shares := make([]ShareInfo, 0, len(note.SharedWith))
	for _, entry := range note.SharedWith {
		info := ShareInfo{CanEdit: entry.CanEdit}
		if profile, found := database.GetProfileByID(entry.ProfileID); found {
			info.Profile = profile.Principal()
		} else {
			// Deleted account; still report the ID so the owner can revoke.
			info.Profile = models.Principal{ID: entry.ProfileID}
		}
		shares = append(shares, info)
	}

	c.JSON(http.StatusOK, shares)
}

// --- Share With a User ---

// ShareNoteRequest identifies the user to share with by email.
type ShareNoteRequest struct {
	Email   string `json:"email" binding:"required,email"`
	CanEdit bool   `json:"can_edit"`
}

// ShareNoteHandler shares a note with another user, or updates their access.
// @Summary      Share a Note
// @Description  Grants another registered user access to the note, identified by their email. Sharing again with the same user updates their access level (the most recent can_edit wins). The owner cannot share a note with themselves.
// @Tags         Sharing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string           true  "The note's unique identifier."
// @Param        share body      ShareNoteRequest true  "The target user's email and whether they may edit."
// @Success      200   {object}  map[string]string "Note shared."
// @Failure      400   {object}  utils.APIError "Bad Request: Invalid body, or you tried to share the note with yourself."
// @Failure      401   {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      403   {object}  utils.APIError "Forbidden: Only the owner can share a note."
// @Failure      404   {object}  utils.APIError "Not Found: The note, or the target user, does not exist."
// @Router       /notes/{id}/shares [put]
func ShareNoteHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	noteID := c.Param("id")

	note, ok := checkNoteOwner(c, database, noteID)
	if !ok {
		return
	}

	var req ShareNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	target, found := database.GetProfileByEmail(req.Email)
	if !found {
		utils.GinNotFound(c, fmt.Sprintf("No user found with email '%s'.", req.Email))
		return
	}
	if target.ID == note.OwnerID {
		utils.GinBadRequest(c, "You cannot share a note with yourself.")
		return
	}

	if err := database.ShareNote(noteID, target.ID, req.CanEdit); err != nil {
		utils.GinNotFound(c, fmt.Sprintf("Note with ID '%s' not found.", noteID))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Note shared successfully."})
}

// --- Toggle Access ---

// ToggleShareAccessHandler flips a shared user's access between view-only and edit.
// @Summary      Toggle a Shared User's Edit Access
// @Description  Switches an existing share between view-only and edit access. Takes effect on the shared user's very next edit attempt, even mid-session.
// @Tags         Sharing
// @Produce      json
// @Security     BearerAuth
// @Param        id         path      string  true  "The note's unique identifier."
// @Param        profile_id path      string  true  "The shared user's profile ID."
// @Success      200  {object}  ShareInfo "The share entry after toggling."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      403  {object}  utils.APIError "Forbidden: Only the owner can change share access."
// @Failure      404  {object}  utils.APIError "Not Found: The note is not shared with that user."
// @Router       /notes/{id}/shares/{profile_id}/toggle [put]
func ToggleShareAccessHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	noteID := c.Param("id")
	profileID := c.Param("profile_id")

	if _, ok := checkNoteOwner(c, database, noteID); !ok {
		return
	}

	entry, err := database.ToggleShareAccess(noteID, profileID)
	if err != nil {
		utils.GinNotFound(c, err.Error())
		return
	}

	info := ShareInfo{CanEdit: entry.CanEdit}
	if profile, found := database.GetProfileByID(profileID); found {
		info.Profile = profile.Principal()
	} else {
		info.Profile = models.Principal{ID: profileID}
	}
	c.JSON(http.StatusOK, info)
}

// --- Revoke Access ---

// RevokeShareHandler removes a user from a note's share list.
// @Summary      Revoke a User's Access
// @Description  Removes a user from the note's share list. Revocation takes effect on the user's very next action, even if they are currently connected to the note's room. Revoking a user who is not in the list is a no-op.
// @Tags         Sharing
// @Produce      json
// @Security     BearerAuth
// @Param        id         path      string  true  "The note's unique identifier."
// @Param        profile_id path      string  true  "The profile ID whose access to revoke."
// @Success      200  {object}  map[string]string "Access revoked."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      403  {object}  utils.APIError "Forbidden: Only the owner can revoke access."
// @Failure      404  {object}  utils.APIError "Not Found: No note exists with the specified ID."
// @Router       /notes/{id}/shares/{profile_id} [delete]
func RevokeShareHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	noteID := c.Param("id")
	profileID := c.Param("profile_id")

	if _, ok := checkNoteOwner(c, database, noteID); !ok {
		return
	}

	if err := database.RevokeShare(noteID, profileID); err != nil {
		utils.GinNotFound(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Access revoked."})
}
