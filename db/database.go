package db

import (
	"collabnotes/config"
	"collabnotes/models"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"collabnotes/utils"
)

// Database holds all application data and manages concurrent access.
// It embeds models.Database for the data maps and adds the persistence
// logic (debounced save timer, backup handling).
type Database struct {
	models.Database // Embedded struct from models
	config          *config.Config
	saveTimer       *time.Timer // Timer for debounced saving
	savePending     bool        // Flag to indicate if a save is queued
	saveMutex       sync.Mutex  // Mutex specifically for the save timer logic
}

// NewDatabase creates and initializes a new Database instance.
// It attempts to load existing data from the configured file.
func NewDatabase(cfg *config.Config) (*Database, error) {
	db := &Database{
		Database: models.Database{
			Profiles: make(map[string]models.Profile),
			Notes:    make(map[string]models.Note),
		},
		config: cfg,
	}

	log.Printf("INFO: Initializing database with file: %s", cfg.DbFilePath)
	err := db.Load()
	if err != nil {
		// Load returns nil for a missing file (fresh start); anything else
		// means an existing file could not be parsed and is critical.
		if !os.IsNotExist(err) {
			log.Printf("ERROR: Database Load failed with critical error: %v", err)
			return nil, err
		}
	}

	return db, nil
}

// Load reads the database state from the JSON file specified in the configuration.
// If the file doesn't exist, it initializes an empty database state and logs a message.
// If the file exists but cannot be parsed, it logs a critical error and returns it.
func (db *Database) Load() error {
	db.Database.Mu.Lock() // Write lock: loading replaces the maps
	defer db.Database.Mu.Unlock()

	fileData, err := os.ReadFile(db.config.DbFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("INFO: Database file '%s' not found. Initializing empty database.", db.config.DbFilePath)
			db.Database.Profiles = make(map[string]models.Profile)
			db.Database.Notes = make(map[string]models.Note)
			return nil // Not an error if the file doesn't exist
		}
		log.Printf("ERROR: Failed to read database file '%s': %v. Attempting to proceed with empty state.", db.config.DbFilePath, err)
		db.Database.Profiles = make(map[string]models.Profile)
		db.Database.Notes = make(map[string]models.Note)
		return nil
	}

	// File exists, attempt to unmarshal directly into the embedded part
	err = json.Unmarshal(fileData, &db.Database)
	if err != nil {
		log.Printf("CRITICAL: Failed to parse JSON data from database file '%s': %v. Server startup might be affected.", db.config.DbFilePath, err)
		if db.Database.Profiles == nil {
			db.Database.Profiles = make(map[string]models.Profile)
		}
		if db.Database.Notes == nil {
			db.Database.Notes = make(map[string]models.Note)
		}
		return err
	}

	// Ensure maps are not nil after unmarshalling (the JSON file may hold nulls)
	if db.Database.Profiles == nil {
		db.Database.Profiles = make(map[string]models.Profile)
	}
	if db.Database.Notes == nil {
		db.Database.Notes = make(map[string]models.Note)
	}

	log.Printf("INFO: Successfully loaded database from %s. Profiles: %d, Notes: %d",
		db.config.DbFilePath, len(db.Database.Profiles), len(db.Database.Notes))

	return nil
}

// persist saves the current database state to the JSON file.
// This is the actual file writing logic, called by the debounced mechanism.
func (db *Database) persist() error {
	db.Database.Mu.RLock() // Read lock is enough for marshalling the current state
	defer db.Database.Mu.RUnlock()

	jsonData, err := json.MarshalIndent(&db.Database, "", "  ")
	if err != nil {
		log.Printf("ERROR: Failed to marshal database state to JSON: %v", err)
		return err
	}

	// --- Atomic Write ---
	tempFilePath := db.config.DbFilePath + ".tmp"
	backupFilePath := db.config.DbFilePath + ".bak"

	// Write to temporary file first
	err = os.WriteFile(tempFilePath, jsonData, 0644)
	if err != nil {
		log.Printf("ERROR: Failed to write to temporary database file '%s': %v", tempFilePath, err)
		return err
	}

	// Handle backup if enabled
	if db.config.EnableBackup {
		if _, err := os.Stat(db.config.DbFilePath); err == nil {
			err = os.Rename(db.config.DbFilePath, backupFilePath)
			if err != nil {
				log.Printf("WARN: Failed to rename '%s' to '%s' for backup: %v. Proceeding with save.", db.config.DbFilePath, backupFilePath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Printf("WARN: Error checking status of original DB file '%s' before backup: %v", db.config.DbFilePath, err)
		}
	}

	// Atomically rename temporary file to the final destination
	err = os.Rename(tempFilePath, db.config.DbFilePath)
	if err != nil {
		log.Printf("ERROR: Failed to atomically rename temporary file '%s' to '%s': %v", tempFilePath, db.config.DbFilePath, err)
		_ = os.Remove(tempFilePath)
		return err
	}

	log.Printf("INFO: Successfully saved database state to %s", db.config.DbFilePath)
	return nil
}

// requestSave is called after every write operation to trigger a debounced save.
func (db *Database) requestSave() {
	db.saveMutex.Lock()
	defer db.saveMutex.Unlock()

	// Instant save if interval is zero or negative
	if db.config.SaveInterval <= 0 {
		go func() {
			if err := db.persist(); err != nil {
				log.Printf("ERROR: Immediate persist failed: %v", err)
			}
		}()
		return
	}

	// Debounced save: if a timer is already running, stop it (reset the debounce period)
	if db.saveTimer != nil {
		db.saveTimer.Stop()
	}

	db.savePending = true

	db.saveTimer = time.AfterFunc(db.config.SaveInterval, func() {
		db.saveMutex.Lock()
		if !db.savePending {
			db.saveMutex.Unlock()
			return // Save was cancelled or already happened
		}
		db.savePending = false
		db.saveMutex.Unlock()

		log.Printf("INFO: Debounced save interval elapsed. Persisting database...")
		if err := db.persist(); err != nil {
			log.Printf("ERROR: Debounced persist failed: %v", err)
		}
	})
}

// Close ensures any pending save operation is completed before shutdown.
func (db *Database) Close() error {
	var needsFinalPersist bool

	db.saveMutex.Lock()
	if db.saveTimer != nil {
		db.saveTimer.Stop()
		db.saveTimer = nil
	}
	if db.savePending {
		needsFinalPersist = true
		db.savePending = false
	}
	db.saveMutex.Unlock() // Release lock before potentially calling persist

	if needsFinalPersist {
		log.Printf("INFO: Performing final persist operation on close...")
		if err := db.persist(); err != nil {
			log.Printf("ERROR: Final persist operation failed during close: %v", err)
			return err
		}
	}

	return nil
}

// --- CRUD Methods: Profiles ---

// CreateProfile adds a new profile to the database.
// It checks for email uniqueness (case-insensitive).
// Returns the created profile or an error if the email already exists.
func (db *Database) CreateProfile(profile models.Profile) (models.Profile, error) {
	db.Database.Mu.Lock() // Full lock for checking uniqueness and writing
	defer db.Database.Mu.Unlock()

	for _, existingProfile := range db.Database.Profiles {
		if strings.EqualFold(existingProfile.Email, profile.Email) {
			return models.Profile{}, fmt.Errorf("email '%s' already exists", profile.Email)
		}
	}

	if profile.ID == "" {
		profile.ID = utils.GenerateDashlessUUID()
	}
	now := time.Now().UTC()
	if profile.CreationDate.IsZero() {
		profile.CreationDate = now
	}
	profile.LastModifiedDate = now

	db.Database.Profiles[profile.ID] = profile
	log.Printf("INFO: Created Profile ID: %s, Email: %s", profile.ID, profile.Email)

	db.requestSave()

	return profile, nil
}

// GetProfileByID retrieves a profile by its ID.
// Returns the profile and true if found, otherwise false.
func (db *Database) GetProfileByID(id string) (models.Profile, bool) {
	db.Database.Mu.RLock()
	defer db.Database.Mu.RUnlock()

	profile, found := db.Database.Profiles[id]
	return profile, found
}

// GetProfileByEmail retrieves a profile by its email address (case-insensitive).
// Returns the profile and true if found, otherwise false.
func (db *Database) GetProfileByEmail(email string) (models.Profile, bool) {
	db.Database.Mu.RLock()
	defer db.Database.Mu.RUnlock()

	for _, profile := range db.Database.Profiles {
		if strings.EqualFold(profile.Email, email) {
			return profile, true
		}
	}
	return models.Profile{}, false
}

// UpdateProfile updates an existing profile's name fields.
// Returns the updated profile or an error if not found.
func (db *Database) UpdateProfile(id string, firstName, lastName string) (models.Profile, error) {
	db.Database.Mu.Lock() // Full lock for read-modify-write
	defer db.Database.Mu.Unlock()

	profile, found := db.Database.Profiles[id]
	if !found {
		return models.Profile{}, fmt.Errorf("profile with ID '%s' not found", id)
	}

	profile.FirstName = firstName
	profile.LastName = lastName
	profile.LastModifiedDate = time.Now().UTC()

	db.Database.Profiles[id] = profile
	log.Printf("INFO: Updated Profile ID: %s", id)

	db.requestSave()

	return profile, nil
}

// --- CRUD Methods: Notes ---

// CreateNote adds a new note to the database.
func (db *Database) CreateNote(note models.Note) (models.Note, error) {
	db.Database.Mu.Lock()
	defer db.Database.Mu.Unlock()

	if note.OwnerID == "" {
		return models.Note{}, fmt.Errorf("note must have an OwnerID")
	}

	note.ID = utils.GenerateDashlessUUID()
	now := time.Now().UTC()
	note.CreationDate = now
	note.LastModifiedDate = now
	if note.SharedWith == nil {
		note.SharedWith = []models.ShareEntry{}
	}

	db.Database.Notes[note.ID] = note
	log.Printf("INFO: Created Note ID: %s, OwnerID: %s", note.ID, note.OwnerID)

	db.requestSave()

	return note, nil
}

// GetNoteByID retrieves a note by its ID.
func (db *Database) GetNoteByID(id string) (models.Note, bool) {
	db.Database.Mu.RLock()
	defer db.Database.Mu.RUnlock()

	note, found := db.Database.Notes[id]
	return note, found
}

// GetNotesForProfile retrieves every note the profile can see: notes it
// owns and notes shared with it, sorted by last modified date (newest first).
func (db *Database) GetNotesForProfile(profileID string) []models.Note {
	db.Database.Mu.RLock()
	defer db.Database.Mu.RUnlock()

	notes := make([]models.Note, 0)
	for _, note := range db.Database.Notes {
		if note.CanView(profileID) {
			notes = append(notes, note)
		}
	}

	sort.Slice(notes, func(i, j int) bool {
		return notes[i].LastModifiedDate.After(notes[j].LastModifiedDate)
	})

	return notes
}

// NoteFieldPatch describes a partial update to a note. Nil fields are left
// untouched.
type NoteFieldPatch struct {
	Title   *string
	Content *string
}

// UpdateNoteFields applies a partial update to a note's title and/or
// content. This is the persistence entry point for both the REST update
// handler and the collaborative save scheduler.
func (db *Database) UpdateNoteFields(id string, patch NoteFieldPatch) (models.Note, error) {
	db.Database.Mu.Lock()
	defer db.Database.Mu.Unlock()

	note, found := db.Database.Notes[id]
	if !found {
		return models.Note{}, fmt.Errorf("note with ID '%s' not found", id)
	}

	if patch.Title != nil {
		note.Title = *patch.Title
	}
	if patch.Content != nil {
		note.Content = *patch.Content
	}
	note.LastModifiedDate = time.Now().UTC()

	db.Database.Notes[id] = note
	log.Printf("INFO: Updated Note ID: %s", id)

	db.requestSave()

	return note, nil
}

// DeleteNote removes a note by its ID.
// Only the owner can delete (checked at handler level).
func (db *Database) DeleteNote(id string) error {
	db.Database.Mu.Lock()
	defer db.Database.Mu.Unlock()

	_, found := db.Database.Notes[id]
	if !found {
		return fmt.Errorf("note with ID '%s' not found", id)
	}

	delete(db.Database.Notes, id)
	log.Printf("INFO: Deleted Note ID: %s", id)

	db.requestSave()

	return nil
}

// --- Share Methods ---

// ShareNote grants a profile access to a note, or updates the access level
// if an entry for that profile already exists (last write to CanEdit wins).
func (db *Database) ShareNote(noteID, profileID string, canEdit bool) error {
	db.Database.Mu.Lock()
	defer db.Database.Mu.Unlock()

	note, found := db.Database.Notes[noteID]
	if !found {
		return fmt.Errorf("note with ID '%s' not found", noteID)
	}

	updated := false
	for i, entry := range note.SharedWith {
		if entry.ProfileID == profileID {
			note.SharedWith[i].CanEdit = canEdit
			updated = true
			break
		}
	}
	if !updated {
		note.SharedWith = append(note.SharedWith, models.ShareEntry{ProfileID: profileID, CanEdit: canEdit})
	}
	note.LastModifiedDate = time.Now().UTC()

	db.Database.Notes[noteID] = note
	log.Printf("INFO: Shared Note ID: %s with Profile ID: %s (can_edit=%t)", noteID, profileID, canEdit)

	db.requestSave()

	return nil
}

// ToggleShareAccess flips the CanEdit flag on an existing share entry.
// Returns an error if the note or the share entry does not exist.
func (db *Database) ToggleShareAccess(noteID, profileID string) (models.ShareEntry, error) {
	db.Database.Mu.Lock()
	defer db.Database.Mu.Unlock()

	note, found := db.Database.Notes[noteID]
	if !found {
		return models.ShareEntry{}, fmt.Errorf("note with ID '%s' not found", noteID)
	}

	for i, entry := range note.SharedWith {
		if entry.ProfileID == profileID {
			note.SharedWith[i].CanEdit = !entry.CanEdit
			note.LastModifiedDate = time.Now().UTC()
			db.Database.Notes[noteID] = note
			log.Printf("INFO: Toggled share access for Profile ID: %s on Note ID: %s (can_edit=%t)", profileID, noteID, note.SharedWith[i].CanEdit)
			db.requestSave()
			return note.SharedWith[i], nil
		}
	}

	return models.ShareEntry{}, fmt.Errorf("note '%s' is not shared with profile '%s'", noteID, profileID)
}

// RevokeShare removes a profile from a note's share list.
// Removing a profile that is not in the list is a no-op.
func (db *Database) RevokeShare(noteID, profileID string) error {
	db.Database.Mu.Lock()
	defer db.Database.Mu.Unlock()

	note, found := db.Database.Notes[noteID]
	if !found {
		return fmt.Errorf("note with ID '%s' not found", noteID)
	}

	foundIndex := -1
	for i, entry := range note.SharedWith {
		if entry.ProfileID == profileID {
			foundIndex = i
			break
		}
	}
	if foundIndex == -1 {
		return nil // Nothing to remove
	}

	note.SharedWith = append(note.SharedWith[:foundIndex], note.SharedWith[foundIndex+1:]...)
	note.LastModifiedDate = time.Now().UTC()

	db.Database.Notes[noteID] = note
	log.Printf("INFO: Revoked share for Profile ID: %s on Note ID: %s", profileID, noteID)

	db.requestSave()

	return nil
}
