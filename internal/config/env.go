package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAPIURL is the production Fyntra API
const DefaultAPIURL = "https://api.fyntra.es/api"

// LoadFromEnv loads configuration from environment variables.
// Parameters:
// - configDir: directory holding the database, log and .env (empty for ~/.fyntra)
// - configFilePath: path to a .env file (empty for <configDir>/.env)
func LoadFromEnv(configDir string, configFilePath string) (*Config, error) {
	cfg := New()

	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".fyntra")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	cfg.configDir = configDir

	if configFilePath == "" {
		configFilePath = filepath.Join(configDir, ".env")
	}

	if envFilePath := getEnvString("ENV_FILE_PATH", ""); envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			return nil, fmt.Errorf("failed to load env file from %s: %w", envFilePath, err)
		}
	} else if err := godotenv.Load(configFilePath); err != nil {
		// Fall back to the working directory; a missing file is fine
		_ = godotenv.Load()
	}

	cfg.Database = DatabaseConfig{
		Path:            getEnvString("FYNTRA_DB_PATH", filepath.Join(configDir, "fyntra.db")),
		JournalMode:     getEnvString("FYNTRA_DB_JOURNAL_MODE", "WAL"),
		SynchronousMode: getEnvString("FYNTRA_DB_SYNCHRONOUS_MODE", "NORMAL"),
		BusyTimeout:     getEnvInt("FYNTRA_DB_BUSY_TIMEOUT", 5000),
		ForeignKeys:     getEnvBool("FYNTRA_DB_FOREIGN_KEYS", true),
		ConnMaxLife:     getEnvDuration("FYNTRA_DB_CONN_MAX_LIFE", 5*time.Minute),
	}

	cfg.Logging = LoggingConfig{
		Level:      getEnvString("FYNTRA_LOG_LEVEL", "info"),
		Format:     getEnvString("FYNTRA_LOG_FORMAT", "text"),
		Output:     getEnvString("FYNTRA_LOG_OUTPUT", filepath.Join(configDir, "fyntra.log")),
		AddSource:  getEnvBool("FYNTRA_LOG_ADD_SOURCE", false),
		TimeFormat: getTimeFormat(getEnvString("FYNTRA_LOG_TIME_FORMAT", "RFC3339")),
	}

	cfg.Server = ServerConfig{
		URL:               getEnvString("FYNTRA_API_URL", DefaultAPIURL),
		Token:             getEnvString("FYNTRA_API_TOKEN", ""),
		Timeout:           getEnvDuration("FYNTRA_API_TIMEOUT", 30*time.Second),
		DeviceName:        getEnvString("FYNTRA_DEVICE_NAME", ""),
		RequestsPerMinute: getEnvInt("FYNTRA_API_REQUESTS_PER_MINUTE", 120),
		BurstLimit:        getEnvInt("FYNTRA_API_BURST_LIMIT", 10),
	}

	cfg.Sync = SyncConfig{
		MaxRetries:          getEnvInt("FYNTRA_SYNC_MAX_RETRIES", 3),
		RefreshRetries:      getEnvInt("FYNTRA_SYNC_REFRESH_RETRIES", 3),
		RefreshInitialDelay: getEnvDuration("FYNTRA_SYNC_REFRESH_INITIAL_DELAY", 2*time.Second),
		RefreshMaxDelay:     getEnvDuration("FYNTRA_SYNC_REFRESH_MAX_DELAY", 30*time.Second),
	}

	cfg.Connectivity = ConnectivityConfig{
		ProbeURL:      getEnvString("FYNTRA_PROBE_URL", "https://clients3.google.com/generate_204"),
		ProbeInterval: getEnvDuration("FYNTRA_PROBE_INTERVAL", 10*time.Second),
		ProbeTimeout:  getEnvDuration("FYNTRA_PROBE_TIMEOUT", 5*time.Second),
	}

	return cfg, cfg.Validate()
}
