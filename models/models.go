package models

import (
	"strings"
	"sync"
	"time"
)

// Profile represents a user account
type Profile struct {
	ID             string    `json:"id"`              // Unique ID (UUID, dashless)
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`           // Unique, used for login
	PasswordHash   string    `json:"password_hash"`   // Store hash, include in JSON persistence.
	CreationDate   time.Time `json:"creation_date"`   // UTC
	LastModifiedDate time.Time `json:"last_modified_date"` // UTC
}

// Principal is the identity a live connection acts as. It is derived from a
// Profile once at authentication time and does not change for the lifetime
// of the session.
type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Principal derives the session identity from a profile.
func (p Profile) Principal() Principal {
	return Principal{
		ID:    p.ID,
		Name:  strings.TrimSpace(p.FirstName + " " + p.LastName),
		Email: p.Email,
	}
}

// ShareEntry grants one profile access to a note. CanEdit false means
// view-only access.
type ShareEntry struct {
	ProfileID string `json:"profile_id"` // Profile ID (dashless)
	CanEdit   bool   `json:"can_edit"`
}

// Note represents a stored note. SharedWith holds at most one entry per
// profile ID; re-sharing a note with the same profile overwrites that
// entry's CanEdit flag.
type Note struct {
	ID             string       `json:"id"`       // Unique ID (UUID, dashless)
	OwnerID        string       `json:"owner_id"` // Profile ID of the owner
	Title          string       `json:"title"`
	Content        string       `json:"content"`
	SharedWith     []ShareEntry `json:"shared_with"`
	CreationDate   time.Time    `json:"creation_date"`      // UTC
	LastModifiedDate time.Time  `json:"last_modified_date"` // UTC
}

// SharedEntry returns the share entry for the given profile ID, if any.
func (n Note) SharedEntry(profileID string) (ShareEntry, bool) {
	for _, entry := range n.SharedWith {
		if entry.ProfileID == profileID {
			return entry, true
		}
	}
	return ShareEntry{}, false
}

// CanView reports whether the profile may see this note: the owner always
// can, and so can anyone in the share list. Callers must pass a freshly
// loaded note; share state can change between calls.
func (n Note) CanView(profileID string) bool {
	if n.OwnerID == profileID {
		return true
	}
	_, shared := n.SharedEntry(profileID)
	return shared
}

// CanEdit reports whether the profile may change this note's title or
// content: the owner always can, shared users only when their entry has
// CanEdit set.
func (n Note) CanEdit(profileID string) bool {
	if n.OwnerID == profileID {
		return true
	}
	entry, shared := n.SharedEntry(profileID)
	return shared && entry.CanEdit
}

// Database holds all application data and manages concurrent access
type Database struct {
	Profiles map[string]Profile `json:"profiles"` // Keyed by Profile ID (dashless)
	Notes    map[string]Note    `json:"notes"`    // Keyed by Note ID (dashless)

	// Mutex for thread-safe access to the maps
	Mu sync.RWMutex `json:"-"` // Exclude mutex from serialization (Exported)
}
