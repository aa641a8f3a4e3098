package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"moneta/internal/log"
	"moneta/internal/services"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath          string
	DefaultCategoriesFile string

	// AMQP (optional; empty URL disables the broker and the processor is
	// woken in-process)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Cloud backend selection
	CloudBackend string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleUsersSheet         string
	GoogleCategoriesSheet    string
	GoogleAssetsSheet        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Sync processor
	SyncPollInterval time.Duration
	SyncBatchSize    int
	SyncMaxRetries   int

	// Sync engine
	SyncMaxConvergeAttempts int
	SyncBackoffMin          time.Duration
	SyncBackoffMax          time.Duration
	SyncConvergeTimeout     time.Duration

	LogLevel string
}

func Load() *Config {
	engine := services.DefaultEngineConfig()
	processor := services.DefaultSyncProcessorConfig()

	cfg := &Config{
		Port:                  getEnv("PORT", "8081"),
		SQLiteDBPath:          getEnv("SQLITE_DB_PATH", "./data/moneta.db"),
		DefaultCategoriesFile: getEnv("DEFAULT_CATEGORIES_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "moneta"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_requests"),

		CloudBackend: getEnv("CLOUD_BACKEND", "memory"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleUsersSheet:         getEnv("GOOGLE_USERS_SHEET_NAME", "Users"),
		GoogleCategoriesSheet:    getEnv("GOOGLE_CATEGORIES_SHEET_NAME", "Categories"),
		GoogleAssetsSheet:        getEnv("GOOGLE_ASSETS_SHEET_NAME", "Assets"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),

		SyncPollInterval: getEnvDuration("SYNC_POLL_INTERVAL", processor.PollInterval),
		SyncBatchSize:    getEnvInt("SYNC_BATCH_SIZE", processor.BatchSize),
		SyncMaxRetries:   getEnvInt("SYNC_MAX_RETRIES", processor.MaxRetries),

		SyncMaxConvergeAttempts: getEnvInt("SYNC_MAX_CONVERGE_ATTEMPTS", engine.MaxConvergeAttempts),
		SyncBackoffMin:          getEnvDuration("SYNC_BACKOFF_MIN", engine.BackoffMin),
		SyncBackoffMax:          getEnvDuration("SYNC_BACKOFF_MAX", engine.BackoffMax),
		SyncConvergeTimeout:     getEnvDuration("SYNC_CONVERGE_TIMEOUT", engine.ConvergeTimeout),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.DefaultCategoriesFile != "" {
		if _, err := os.Stat(c.DefaultCategoriesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("default categories file does not exist: %s", c.DefaultCategoriesFile))
		}
	}

	validBackends := []string{"memory", "sheets"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.CloudBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid cloud backend '%s': must be one of %v", c.CloudBackend, validBackends))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CloudBackend == "sheets" {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleUsersSheet == "" || c.GoogleCategoriesSheet == "" || c.GoogleAssetsSheet == "" {
			errors = append(errors, "Google sheet names cannot be empty when using sheets backend")
		}

		hasFile := c.GoogleServiceAccountFile != ""
		hasJSON := c.GoogleServiceAccountJSON != ""
		if !hasFile && !hasJSON {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync poll interval %v: must be at least 1 second", c.SyncPollInterval))
	} else if c.SyncPollInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync poll interval %v: must be at most 24 hours", c.SyncPollInterval))
	}

	if c.SyncMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync max retries %d: must be at least 1", c.SyncMaxRetries))
	}
	if c.SyncMaxConvergeAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid converge attempts %d: must be at least 1", c.SyncMaxConvergeAttempts))
	}
	if c.SyncBackoffMin <= 0 {
		errors = append(errors, fmt.Sprintf("invalid sync backoff min %v: must be positive", c.SyncBackoffMin))
	}
	if c.SyncBackoffMax < c.SyncBackoffMin {
		errors = append(errors, fmt.Sprintf("invalid sync backoff max %v: must be at least backoff min %v", c.SyncBackoffMax, c.SyncBackoffMin))
	}
	if c.SyncConvergeTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid converge timeout %v: must be positive", c.SyncConvergeTimeout))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// EngineConfig returns the sync engine settings.
func (c *Config) EngineConfig() services.EngineConfig {
	return services.EngineConfig{
		MaxConvergeAttempts: c.SyncMaxConvergeAttempts,
		BackoffMin:          c.SyncBackoffMin,
		BackoffMax:          c.SyncBackoffMax,
		ConvergeTimeout:     c.SyncConvergeTimeout,
	}
}

// ProcessorConfig returns the sync processor settings. Cleanup uses the defaults.
func (c *Config) ProcessorConfig() services.SyncProcessorConfig {
	p := services.DefaultSyncProcessorConfig()
	p.PollInterval = c.SyncPollInterval
	p.BatchSize = c.SyncBatchSize
	p.MaxRetries = c.SyncMaxRetries
	return p
}

// GoogleCredentials returns the service account key, preferring inline JSON.
func (c *Config) GoogleCredentials() ([]byte, error) {
	if c.GoogleServiceAccountJSON != "" {
		return []byte(c.GoogleServiceAccountJSON), nil
	}
	if c.GoogleServiceAccountFile == "" {
		return nil, fmt.Errorf("no Google service account configured")
	}
	b, err := os.ReadFile(c.GoogleServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return b, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
