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

	"conti/internal/fx"
)

type Config struct {
	// HTTP Server
	Port           string
	RateLimitPerIP int // mutating requests per minute

	// Storage
	DataBackend        string
	FallbackBackend    string
	DataFile           string
	DataDirectory      string
	SQLiteDBPath       string
	ReloadBeforeMutate bool

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleExpensesSheetName  string
	GoogleMetaSheetName      string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	MirrorBackend  string
	MirrorInterval time.Duration

	// Currency conversion
	FXBase   string
	FXRates  string
	FXSource string
	FXAsOf   string

	// Logging and caching
	LogLevel  string
	LogFormat string
	CacheTTL  time.Duration
}

var (
	validBackends  = []string{"file", "memory", "sheets", "sqlite"}
	validFallbacks = []string{"file", "memory", "none"}
	validMirrors   = []string{"", "file", "sheets", "sqlite"}
	validLevels    = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"tint", "text", "json"}
)

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		RateLimitPerIP: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		DataBackend:        strings.ToLower(getEnv("DATA_BACKEND", "file")),
		FallbackBackend:    strings.ToLower(getEnv("FALLBACK_BACKEND", "file")),
		DataFile:           getEnv("DATA_FILE", "data/expenses_data.json"),
		DataDirectory:      getEnv("DATA_DIRECTORY", "data"),
		SQLiteDBPath:       getEnv("SQLITE_DB_PATH", "./data/conti.db"),
		ReloadBeforeMutate: getEnvBool("RELOAD_BEFORE_MUTATE", false),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SHEET_ID", getEnv("GOOGLE_SPREADSHEET_ID", "")),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		GoogleExpensesSheetName:  getEnv("GOOGLE_EXPENSES_SHEET_NAME", "expenses"),
		GoogleMetaSheetName:      getEnv("GOOGLE_META_SHEET_NAME", "meta"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "conti"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_changed"),

		MirrorBackend:  strings.ToLower(getEnv("MIRROR_BACKEND", "")),
		MirrorInterval: getEnvDuration("MIRROR_INTERVAL", 5*time.Minute),

		FXBase:   strings.ToUpper(getEnv("FX_BASE", "CHF")),
		FXRates:  getEnv("FX_RATES", ""),
		FXSource: getEnv("FX_SOURCE", "configured"),
		FXAsOf:   getEnv("FX_AS_OF", ""),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "tint")),
		CacheTTL:  getEnvDuration("CACHE_TTL", 5*time.Minute),
	}

	return cfg
}

// FXTable builds the injected rate table. Call it on a validated config.
func (c *Config) FXTable() fx.Table {
	rates, _ := fx.ParseRates(c.FXRates)
	return fx.Table{Base: c.FXBase, Rates: rates, Source: c.FXSource, AsOf: c.FXAsOf}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerIP < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerIP))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if !slices.Contains(validFallbacks, c.FallbackBackend) {
		errors = append(errors, fmt.Sprintf("invalid fallback backend '%s': must be one of %v", c.FallbackBackend, validFallbacks))
	}
	if !slices.Contains(validMirrors, c.MirrorBackend) {
		errors = append(errors, fmt.Sprintf("invalid mirror backend '%s': must be one of %v", c.MirrorBackend, validMirrors[1:]))
	} else if c.MirrorBackend != "" && c.MirrorBackend == c.DataBackend {
		errors = append(errors, "mirror backend must differ from the data backend")
	}

	uses := func(b string) bool { return c.DataBackend == b || c.MirrorBackend == b }

	if uses("sqlite") {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
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

	if (uses("file") || c.FallbackBackend == "file") && c.DataFile == "" {
		errors = append(errors, "data file path cannot be empty when using file storage")
	}

	if uses("sheets") {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "GOOGLE_SHEET_ID is required when using sheets backend")
		}
		if c.GoogleServiceAccountFile != "" && c.GoogleServiceAccountJSON == "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
		if c.GoogleExpensesSheetName == c.GoogleMetaSheetName {
			errors = append(errors, "expenses and meta worksheets must have different names")
		}
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

	if c.MirrorInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid mirror interval %v: must be at least 1 second", c.MirrorInterval))
	} else if c.MirrorInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid mirror interval %v: must be at most 24 hours", c.MirrorInterval))
	}

	if c.FXBase == "" {
		errors = append(errors, "FX base unit cannot be empty")
	}
	if _, err := fx.ParseRates(c.FXRates); err != nil {
		errors = append(errors, fmt.Sprintf("invalid FX rates: %v", err))
	}

	if !slices.Contains(validLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}
	if !slices.Contains(validFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}
	if c.CacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must not be negative", c.CacheTTL))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
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
