package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Winery REST API
	APIBaseURL  string
	APITimeout  time.Duration
	DataBackend string

	// Sessions
	SessionStore       string
	SQLiteDBPath       string
	SessionCookieName  string
	SessionIdleTimeout time.Duration
	TokenRefreshWindow time.Duration
	SecureCookies      bool

	// Screens
	LogsRefreshInterval time.Duration
	OptionsPageSize     int
	OptionsCacheTTL     time.Duration
	LoginRateLimit      int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets report export
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Worker
	WorkerUsername     string
	WorkerPassword     string
	ReportSyncInterval time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
		APITimeout:  getEnvDuration("API_TIMEOUT", 10*time.Second),
		DataBackend: getEnv("DATA_BACKEND", "memory"),

		SessionStore:       getEnv("SESSION_STORE", "sqlite"),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/winery.db"),
		SessionCookieName:  getEnv("SESSION_COOKIE_NAME", "winery_session"),
		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", 12*time.Hour),
		TokenRefreshWindow: getEnvDuration("TOKEN_REFRESH_WINDOW", 2*time.Minute),
		SecureCookies:      getEnvBool("SECURE_COOKIES", false),

		LogsRefreshInterval: getEnvDuration("LOGS_REFRESH_INTERVAL", 30*time.Second),
		OptionsPageSize:     getEnvInt("OPTIONS_PAGE_SIZE", 1000),
		OptionsCacheTTL:     getEnvDuration("OPTIONS_CACHE_TTL", 5*time.Minute),
		LoginRateLimit:      getEnvInt("LOGIN_RATE_LIMIT", 10),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "winery"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "record_changes"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Reports"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		WorkerUsername:     getEnv("WORKER_USERNAME", ""),
		WorkerPassword:     getEnv("WORKER_PASSWORD", ""),
		ReportSyncInterval: getEnvDuration("REPORT_SYNC_INTERVAL", time.Hour),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "rest"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "rest" {
		if parsed, err := url.Parse(c.APIBaseURL); err != nil || c.APIBaseURL == "" {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s'", c.APIBaseURL))
		} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
		}
	}
	if c.APITimeout < time.Second || c.APITimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be between 1s and 2m", c.APITimeout))
	}

	// Validate session store
	validStores := []string{"memory", "sqlite"}
	if !slices.Contains(validStores, c.SessionStore) {
		errors = append(errors, fmt.Sprintf("invalid session store '%s': must be one of %v", c.SessionStore, validStores))
	}
	if c.SessionStore == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite session store")
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
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		errors = append(errors, "session cookie name cannot be empty")
	}
	if c.SessionIdleTimeout < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session idle timeout %v: must be at least 1 minute", c.SessionIdleTimeout))
	}
	if c.TokenRefreshWindow < 0 {
		errors = append(errors, fmt.Sprintf("invalid token refresh window %v: must not be negative", c.TokenRefreshWindow))
	}

	// Screens
	if c.LogsRefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid logs refresh interval %v: must be at least 1 second", c.LogsRefreshInterval))
	}
	if c.OptionsPageSize < 1 || c.OptionsPageSize > 5000 {
		errors = append(errors, fmt.Sprintf("invalid options page size %d: must be between 1 and 5000", c.OptionsPageSize))
	}
	if c.LoginRateLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid login rate limit %d: must be at least 1", c.LoginRateLimit))
	}

	// Validate AMQP URL if provided
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

	// Google Sheets export is optional, but needs credentials once enabled
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.ReportSyncInterval < time.Minute || c.ReportSyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid report sync interval %v: must be between 1 minute and 24 hours", c.ReportSyncInterval))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks the settings only the report worker needs.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.WorkerUsername == "" || c.WorkerPassword == "" {
		errors = append(errors, "WORKER_USERNAME and WORKER_PASSWORD are required for the worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
