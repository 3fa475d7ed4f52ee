package api

import (
	"collabnotes/config"
	"collabnotes/db"
	"collabnotes/models"
	"collabnotes/utils"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// --- Signup ---

// SignupRequest defines the expected body for creating an account.
type SignupRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
}

// SignupHandler registers a new user account.
// @Summary      Create a New Account
// @Description  Registers a new user with an email, password, and name. The email must not already be in use.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        account body SignupRequest true "The new account's details."
// @Success      201  {object}  models.Profile "Account created. The response contains the new profile."
// @Failure      400  {object}  utils.APIError "Bad Request: The request body is invalid (missing fields, malformed email, password too short)."
// @Failure      409  {object}  utils.APIError "Conflict: An account with this email already exists."
// @Failure      500  {object}  utils.APIError "Internal Server Error."
// @Router       /auth/signup [post]
func SignupHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	hash, err := utils.HashPassword(req.Password, cfg.BcryptCost)
	if err != nil {
		utils.GinInternalServerError(c, "Failed to process password.")
		return
	}

	profile := models.Profile{
		Email:        strings.TrimSpace(req.Email),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
	}

	created, err := database.CreateProfile(profile)
	if err != nil {
		// The only creation failure is a duplicate email.
		utils.GinConflict(c, err.Error())
		return
	}

	// Never echo the hash back.
	created.PasswordHash = ""
	c.JSON(http.StatusCreated, created)
}

// --- Login ---

// LoginRequest defines the expected body for logging in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the bearer token issued on successful login.
type LoginResponse struct {
	Token   string         `json:"token"`
	Profile models.Profile `json:"profile"`
}

// LoginHandler authenticates a user and issues a JWT bearer token.
// @Summary      Log In
// @Description  Verifies the email/password pair and returns a signed bearer token. Present the token in the Authorization header ("Bearer {token}") on REST calls, and at WebSocket connect time, to act as this user.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        credentials body LoginRequest true "The account's email and password."
// @Success      200  {object}  LoginResponse "Login succeeded. The response contains the bearer token and the profile."
// @Failure      400  {object}  utils.APIError "Bad Request: The request body is invalid."
// @Failure      401  {object}  utils.APIError "Unauthorized: Unknown email or wrong password."
// @Failure      500  {object}  utils.APIError "Internal Server Error."
// @Router       /auth/login [post]
func LoginHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinBadRequest(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	profile, found := database.GetProfileByEmail(req.Email)
	if !found || !utils.CheckPasswordHash(req.Password, profile.PasswordHash) {
		// Same response for unknown email and wrong password.
		utils.GinUnauthorized(c, "Invalid email or password.")
		return
	}

	token, err := utils.GenerateJWT(&profile, cfg)
	if err != nil {
		utils.GinInternalServerError(c, "Failed to generate token.")
		return
	}

	profile.PasswordHash = ""
	c.JSON(http.StatusOK, LoginResponse{Token: token, Profile: profile})
}

// --- Logout ---

// LogoutHandler acknowledges a logout request.
// @Summary      Log Out
// @Description  Tokens are stateless, so logout is client-side: discard the token. This endpoint exists so clients have an explicit logout call to make.
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]string "Logout acknowledged."
// @Failure      401  {object}  utils.APIError "Unauthorized: Your access token is missing, invalid, or expired."
// @Router       /auth/logout [post]
func LogoutHandler(c *gin.Context, database *db.Database, cfg *config.Config) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out."})
}
