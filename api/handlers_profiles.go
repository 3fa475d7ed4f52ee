package api

import (
	"collabnotes/config"
	"collabnotes/db"
	"collabnotes/utils"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// authUserID pulls the authenticated user's ID out of the request context
// (set by utils.AuthMiddleware). A missing ID means the middleware did not
// run and is treated as a server fault.
func authUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		utils.GinInternalServerError(c, "User ID not found in context.")
		return "", false
	}
	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		utils.GinInternalServerError(c, "Invalid User ID format in context.")
		return "", false
	}
	return userIDStr, true
}

// GetProfileMeHandler retrieves the profile of the currently authenticated user.
// @Summary      Get Your Own Profile
// @Description  Retrieves the profile details for the user the access token identifies.
// @Tags         Profiles
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.Profile "Your profile details."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      404  {object}  utils.APIError "Not Found: No profile matches your access token."
// @Failure      500  {object}  utils.APIError "Internal Server Error."
// @Router       /profiles/me [get]
func GetProfileMeHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	userID, ok := authUserID(c)
	if !ok {
		return
	}

	profile, found := database.GetProfileByID(userID)
	if !found {
		// Valid token but the account was deleted mid-session.
		utils.GinError(c, http.StatusNotFound, "Authenticated user profile not found.")
		return
	}

	profile.PasswordHash = ""
	c.JSON(http.StatusOK, profile)
}

// UpdateProfileRequest defines the fields allowed for updating a profile.
// Email and password cannot be changed here.
type UpdateProfileRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

// UpdateProfileMeHandler updates the profile of the currently authenticated user.
// @Summary      Update Your Own Profile
// @Description  Changes the authenticated user's first and last name. Email and password cannot be changed through this endpoint.
// @Tags         Profiles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        profile body UpdateProfileRequest true "The profile fields to update."
// @Success      200  {object}  models.Profile "The updated profile."
// @Failure      400  {object}  utils.APIError "Bad Request: Missing required fields or malformed JSON."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Failure      404  {object}  utils.APIError "Not Found: No profile matches your access token."
// @Failure      500  {object}  utils.APIError "Internal Server Error."
// @Router       /profiles/me [put]
func UpdateProfileMeHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	userID, ok := authUserID(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	updated, err := database.UpdateProfile(userID, req.FirstName, req.LastName)
	if err != nil {
		utils.GinError(c, http.StatusNotFound, "Authenticated user profile not found.")
		return
	}

	updated.PasswordHash = ""
	c.JSON(http.StatusOK, updated)
}
