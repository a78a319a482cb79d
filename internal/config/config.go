// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/loanops/dealbridge/internal/utils"
)

// PropertyNames holds the HubSpot deal property names the relay reads and writes.
// Every name can be overridden per deployment via environment variables, since
// portals differ in how the custom properties were provisioned.
type PropertyNames struct {
	State          string // JSON checklist state blob (primary write target)
	FallbackState  string // secondary state property, tried once when the primary doesn't exist
	CollateralType string
	CompleteFlag   string // "true"/"false" flag driving isSaved
	Status         string // human-facing status label, set on completion
	SavedAt        string // RFC3339 timestamp of the last completed save
}

// Config holds application configuration
type Config struct {
	DataDir        string // Base directory for the local mirror database; empty = in-memory store
	HubSpotToken   string
	HubSpotBaseURL string // Override for tests; defaults to the public API
	FREDAPIKey     string
	FREDBaseURL    string
	Properties     PropertyNames
	SigningSecret  string   // Optional; enables request signature validation when set
	AllowedPortals []string // Optional portal ID allow-list for signed requests
	Backup         *BackupConfig
	LogLevel       string
	Port           int
	DevMode        bool
}

// BackupConfig holds S3-compatible backup storage settings.
// Backup is disabled when nil (no bucket configured).
type BackupConfig struct {
	Endpoint  string // Optional custom endpoint (R2, MinIO); empty = AWS S3
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string // Object key prefix inside the bucket
	Keep      int    // Backups retained after pruning; 0 disables pruning
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("RELAY_DATA_DIR", "")
	if dataDir != "" {
		absDataDir, err := filepath.Abs(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
		}
		if err := os.MkdirAll(absDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		dataDir = absDataDir
	}

	cfg := &Config{
		DataDir:        dataDir,
		HubSpotToken:   getEnv("HUBSPOT_TOKEN", ""),
		HubSpotBaseURL: getEnv("HUBSPOT_BASE_URL", ""),
		FREDAPIKey:     getEnv("FRED_API_KEY", ""),
		FREDBaseURL:    getEnv("FRED_BASE_URL", ""),
		Properties:     loadPropertyNames(),
		SigningSecret:  getEnv("HUBSPOT_SIGNING_SECRET", ""),
		AllowedPortals: utils.ParseCSV(getEnv("HUBSPOT_ALLOWED_PORTALS", "")),
		Backup:         loadBackupConfig(),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Port:           getEnvAsInt("PORT", 8080),
		DevMode:        getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadPropertyNames resolves the deal property names once at startup.
// Defaults match the properties provisioned by the checklist widget installer.
func loadPropertyNames() PropertyNames {
	return PropertyNames{
		State:          getEnv("CHECKLIST_STATE_PROPERTY", "collateral_checklist_state"),
		FallbackState:  getEnv("CHECKLIST_FALLBACK_PROPERTY", "collateral_checklist_data"),
		CollateralType: getEnv("COLLATERAL_TYPE_PROPERTY", "collateral_type"),
		CompleteFlag:   getEnv("CHECKLIST_COMPLETE_PROPERTY", "collateral_checklist_complete"),
		Status:         getEnv("CHECKLIST_STATUS_PROPERTY", "collateral_checklist_status"),
		SavedAt:        getEnv("CHECKLIST_SAVED_AT_PROPERTY", "collateral_checklist_saved_at"),
	}
}

// loadBackupConfig returns nil unless a backup bucket is configured.
func loadBackupConfig() *BackupConfig {
	bucket := getEnv("BACKUP_S3_BUCKET", "")
	if bucket == "" {
		return nil
	}
	return &BackupConfig{
		Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
		Region:    getEnv("BACKUP_S3_REGION", "us-east-1"),
		Bucket:    bucket,
		AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
		SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
		Prefix:    getEnv("BACKUP_S3_PREFIX", "dealbridge-backups"),
		Keep:      getEnvAsInt("BACKUP_S3_KEEP", 10),
	}
}

// Validate checks if required configuration is present.
// The HubSpot token and FRED key are required by their endpoints but the
// server still starts without them; handlers report missing configuration
// as operator errors at request time.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return nil
}

// SignatureEnabled reports whether inbound request signing is configured.
func (c *Config) SignatureEnabled() bool {
	return c.SigningSecret != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
