package realtime

import (
	"errors"

	"collabnotes/config"
	"collabnotes/models"
	"collabnotes/utils"
)

// ErrUnauthenticated is returned for every credential failure. A missing,
// expired, or malformed credential all look the same to the caller, and the
// connection is rejected before any event is accepted.
var ErrUnauthenticated = errors.New("unauthenticated")

// ProfileStore resolves an authenticated user ID to a stored profile.
// Satisfied by db.Database.
type ProfileStore interface {
	GetProfileByID(id string) (models.Profile, bool)
}

// Authenticator validates a bearer credential presented at connect time and
// maps it to the principal the session will act as.
type Authenticator interface {
	Authenticate(credential string) (models.Principal, error)
}

// JWTAuthenticator verifies HS256 bearer tokens issued by the login
// endpoint and derives the session principal from the token's profile.
type JWTAuthenticator struct {
	cfg      *config.Config
	profiles ProfileStore
}

// NewJWTAuthenticator creates an authenticator backed by the given profile
// store and JWT configuration.
func NewJWTAuthenticator(cfg *config.Config, profiles ProfileStore) *JWTAuthenticator {
	return &JWTAuthenticator{cfg: cfg, profiles: profiles}
}

// Authenticate validates the credential and returns the principal it
// identifies. All failure modes collapse to ErrUnauthenticated.
func (a *JWTAuthenticator) Authenticate(credential string) (models.Principal, error) {
	if credential == "" {
		return models.Principal{}, ErrUnauthenticated
	}

	claims, err := utils.ValidateJWT(credential, a.cfg)
	if err != nil {
		return models.Principal{}, ErrUnauthenticated
	}

	profile, found := a.profiles.GetProfileByID(claims.UserID)
	if !found {
		// Token is valid but the account is gone; treat it the same way.
		return models.Principal{}, ErrUnauthenticated
	}

	return profile.Principal(), nil
}
