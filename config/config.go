package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all configuration settings for the application.
type Config struct {
	// Server settings
	ListenAddress string
	ListenPort    string

	// Database settings
	DbFilePath   string
	SaveInterval time.Duration
	EnableBackup bool

	// Authentication settings
	JwtSecret     string // The actual secret key
	JwtSecretFile string // Path to the file containing the secret
	TokenLifetime time.Duration
	BcryptCost    int

	// Collaboration settings
	ContentSaveDebounce time.Duration // Quiet period before a live content edit is persisted
}

const (
	defaultAddress             = "0.0.0.0"
	defaultPort                = "8080"
	defaultDbFile              = "./notes.json" // Relative to working dir
	defaultSaveInterval        = 3 * time.Second
	defaultEnableBackup        = true
	defaultJwtSecretFile       = "" // No default file
	defaultJwtSecretEnv        = "" // No default env secret
	defaultJwtKeyFile          = "./notes.key" // Default file if we generate a key
	defaultTokenLifetime       = 1 * time.Hour
	defaultBcryptCost          = 12
	defaultContentSaveDebounce = 2 * time.Second
)

// LoadConfig loads configuration from defaults, environment variables, and command-line flags.
// Command-line flags take precedence over environment variables, which take precedence over defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// Define flags. Environment variables use the COLLABNOTES_ prefix.
	flag.StringVar(&cfg.ListenAddress, "address", getEnv("COLLABNOTES_LISTEN_ADDRESS", defaultAddress), "Server listen address (Env: COLLABNOTES_LISTEN_ADDRESS)")
	flag.StringVar(&cfg.ListenPort, "port", defaultPort, "Server listen port (Env: COLLABNOTES_LISTEN_PORT)")
	flag.StringVar(&cfg.DbFilePath, "db-file", getEnv("COLLABNOTES_DB_FILE_PATH", defaultDbFile), "Path to the JSON database file (Env: COLLABNOTES_DB_FILE_PATH)")
	saveIntervalStr := flag.String("save-interval", getEnv("COLLABNOTES_SAVE_INTERVAL", defaultSaveInterval.String()), "Debounce interval for saving DB (e.g., 5s, 100ms) (Env: COLLABNOTES_SAVE_INTERVAL)")
	flag.BoolVar(&cfg.EnableBackup, "enable-backup", getEnvBool("COLLABNOTES_ENABLE_BACKUP", defaultEnableBackup), "Enable database backup (.bak file) before saving (Env: COLLABNOTES_ENABLE_BACKUP)")
	flag.StringVar(&cfg.JwtSecretFile, "jwt-secret-file", getEnv("COLLABNOTES_JWT_SECRET_FILE", defaultJwtSecretFile), "Path to file containing JWT secret key (overrides COLLABNOTES_JWT_SECRET env var) (Env: COLLABNOTES_JWT_SECRET_FILE)")
	contentDebounceStr := flag.String("content-save-debounce", getEnv("COLLABNOTES_CONTENT_SAVE_DEBOUNCE", defaultContentSaveDebounce.String()), "Quiet period before a collaborative content edit is persisted (Env: COLLABNOTES_CONTENT_SAVE_DEBOUNCE)")

	// Non-configurable defaults
	cfg.TokenLifetime = defaultTokenLifetime
	cfg.BcryptCost = defaultBcryptCost

	// Parse flags to override defaults and env vars
	flag.Parse()

	// --- Post-Flag Parsing Adjustments ---
	// Explicitly check environment variables to allow them to override defaults
	// if the corresponding flag was not provided.

	// Port
	envPort := getEnv("COLLABNOTES_LISTEN_PORT", "")
	if cfg.ListenPort == defaultPort && envPort != "" {
		cfg.ListenPort = envPort
	}

	// DbFilePath
	envDbFile := getEnv("COLLABNOTES_DB_FILE_PATH", "")
	if cfg.DbFilePath == defaultDbFile && envDbFile != "" {
		cfg.DbFilePath = envDbFile
	}

	// SaveInterval (needs parsing)
	envSaveInterval := getEnv("COLLABNOTES_SAVE_INTERVAL", "")
	if *saveIntervalStr == defaultSaveInterval.String() && envSaveInterval != "" {
		if _, err := time.ParseDuration(envSaveInterval); err == nil {
			*saveIntervalStr = envSaveInterval
		} else {
			log.Printf("WARN: Invalid duration in COLLABNOTES_SAVE_INTERVAL: '%s'. Using default/flag value. Error: %v", envSaveInterval, err)
		}
	}

	// ContentSaveDebounce (same treatment as SaveInterval)
	envContentDebounce := getEnv("COLLABNOTES_CONTENT_SAVE_DEBOUNCE", "")
	if *contentDebounceStr == defaultContentSaveDebounce.String() && envContentDebounce != "" {
		if _, err := time.ParseDuration(envContentDebounce); err == nil {
			*contentDebounceStr = envContentDebounce
		} else {
			log.Printf("WARN: Invalid duration in COLLABNOTES_CONTENT_SAVE_DEBOUNCE: '%s'. Using default/flag value. Error: %v", envContentDebounce, err)
		}
	}

	// JwtSecretFile
	envJwtSecretFile := getEnv("COLLABNOTES_JWT_SECRET_FILE", "")
	if cfg.JwtSecretFile == defaultJwtSecretFile && envJwtSecretFile != "" {
		cfg.JwtSecretFile = envJwtSecretFile
	}

	// Parse durations after flags are parsed
	var err error
	cfg.SaveInterval, err = time.ParseDuration(*saveIntervalStr)
	if err != nil {
		log.Printf("WARN: Invalid save-interval duration '%s'. Using default %s. Error: %v", *saveIntervalStr, defaultSaveInterval, err)
		cfg.SaveInterval = defaultSaveInterval
	}
	cfg.ContentSaveDebounce, err = time.ParseDuration(*contentDebounceStr)
	if err != nil {
		log.Printf("WARN: Invalid content-save-debounce duration '%s'. Using default %s. Error: %v", *contentDebounceStr, defaultContentSaveDebounce, err)
		cfg.ContentSaveDebounce = defaultContentSaveDebounce
	}

	// --- JWT Secret Handling ---
	// Priority: File (CLI/Env) > Env Var > Default Key File > Generate
	var secretSource string // To track where the secret came from for logging

	// 1. Check explicit file path (from flag or COLLABNOTES_JWT_SECRET_FILE env)
	if cfg.JwtSecretFile != "" {
		secretBytes, err := os.ReadFile(cfg.JwtSecretFile)
		if err == nil {
			cfg.JwtSecret = strings.TrimSpace(string(secretBytes))
			if cfg.JwtSecret != "" {
				log.Printf("INFO: Loaded JWT secret from specified file: %s", cfg.JwtSecretFile)
				secretSource = fmt.Sprintf("File (%s)", cfg.JwtSecretFile)
			} else {
				log.Printf("WARN: Specified JWT secret file '%s' is empty or contains only whitespace. Ignoring.", cfg.JwtSecretFile)
			}
		} else {
			log.Printf("WARN: Failed to read specified JWT secret file '%s': %v. Checking other sources.", cfg.JwtSecretFile, err)
		}
	}

	// 2. Check environment variable (COLLABNOTES_JWT_SECRET) if not loaded from file
	if cfg.JwtSecret == "" {
		envSecret := getEnv("COLLABNOTES_JWT_SECRET", defaultJwtSecretEnv)
		cfg.JwtSecret = strings.TrimSpace(envSecret)
		if cfg.JwtSecret != "" {
			log.Printf("INFO: Loaded JWT secret from COLLABNOTES_JWT_SECRET environment variable.")
			secretSource = "Environment Variable (COLLABNOTES_JWT_SECRET)"
		}
	}

	// 3. Check default key file if still no secret
	if cfg.JwtSecret == "" {
		secretBytes, err := os.ReadFile(defaultJwtKeyFile)
		if err == nil {
			cfg.JwtSecret = strings.TrimSpace(string(secretBytes))
			if cfg.JwtSecret != "" {
				log.Printf("INFO: Loaded JWT secret from default key file: %s", defaultJwtKeyFile)
				secretSource = fmt.Sprintf("Default Key File (%s)", defaultJwtKeyFile)
			} else {
				log.Printf("WARN: Default JWT key file '%s' is empty or contains only whitespace. Will attempt generation.", defaultJwtKeyFile)
			}
		} else if !os.IsNotExist(err) {
			log.Printf("WARN: Failed to read default JWT key file '%s': %v. Will attempt generation.", defaultJwtKeyFile, err)
		}
		// If err is os.IsNotExist, we proceed to generation silently.
	}

	// 4. Generate secret if still not found and save to default file
	if cfg.JwtSecret == "" {
		log.Printf("INFO: JWT secret not found via file, environment variable, or default key file. Generating a new secret...")
		newSecret, err := generateRandomKey(32) // Generate a 256-bit key
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.JwtSecret = newSecret

		err = os.WriteFile(defaultJwtKeyFile, []byte(newSecret), 0600) // Read/write for owner only
		if err != nil {
			// The server can still run with the generated key in memory.
			log.Printf("WARN: Failed to save generated JWT secret to '%s': %v. The server will use the generated key for this session only.", defaultJwtKeyFile, err)
		} else {
			log.Printf("INFO: Successfully generated and saved new JWT secret to: %s", defaultJwtKeyFile)
			secretSource = fmt.Sprintf("Generated & Saved (%s)", defaultJwtKeyFile)
		}
	}

	// Final validation: ensure secret is not empty after all checks/generation
	if cfg.JwtSecret == "" {
		return nil, fmt.Errorf("failed to obtain a valid JWT secret after checking all sources and attempting generation")
	}

	// --- Database Path Validation ---
	absDbPath, err := filepath.Abs(cfg.DbFilePath)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for db-file '%s': %w", cfg.DbFilePath, err)
	}
	cfg.DbFilePath = absDbPath

	// Check if the resolved DB path points to an existing directory
	fileInfo, err := os.Stat(cfg.DbFilePath)
	if err == nil && fileInfo.IsDir() {
		return nil, fmt.Errorf("database path '%s' points to a directory, not a file", cfg.DbFilePath)
	}
	// os.IsNotExist is fine here; the DB is created on first run.

	logConfiguration(cfg, secretSource)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// Recognizes "true", "1", "yes" (case-insensitive) as true.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
		log.Printf("WARN: Invalid boolean value for environment variable %s: '%s'. Using default: %t", key, value, fallback)
	}
	return fallback
}

// logConfiguration prints the loaded configuration settings.
func logConfiguration(cfg *Config, secretSource string) {
	log.Println("--- Configuration ---")
	log.Printf("Server Address: %s", cfg.ListenAddress)
	log.Printf("Server Port: %s", cfg.ListenPort)
	log.Printf("Database File: %s", cfg.DbFilePath)
	log.Printf("Database Save Interval: %s", cfg.SaveInterval)
	log.Printf("Database Backup Enabled: %t", cfg.EnableBackup)
	log.Printf("Content Save Debounce: %s", cfg.ContentSaveDebounce)
	if secretSource == "" {
		secretSource = "Generated (In Memory)"
	}
	log.Printf("JWT Secret Source: %s", secretSource)
	log.Printf("JWT Token Lifetime: %s", cfg.TokenLifetime)
	log.Printf("Bcrypt Cost: %d", cfg.BcryptCost)
	log.Println("---------------------")
}

// generateRandomKey generates a cryptographically secure random key of the specified byte length
// and returns it as a hex-encoded string.
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}
