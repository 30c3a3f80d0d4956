package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Backend names accepted by DATA_BACKEND.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Auth provider names accepted by AUTH_PROVIDER.
const (
	AuthGoogle = "google"
	AuthDev    = "dev"
)

type Config struct {
	// HTTP Server
	Port         string `envconfig:"PORT" default:"8080"`
	BaseURL      string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	CookieSecure bool   `envconfig:"COOKIE_SECURE" default:"false"`

	// Storage
	DataBackend  string `envconfig:"DATA_BACKEND" default:"memory"`
	SQLiteDBPath string `envconfig:"SQLITE_DB_PATH" default:"./data/profitdash.db"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	// Authentication
	AuthProvider       string        `envconfig:"AUTH_PROVIDER" default:"dev"`
	GoogleClientID     string        `envconfig:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `envconfig:"GOOGLE_CLIENT_SECRET"`
	OAuthRedirectURL   string        `envconfig:"OAUTH_REDIRECT_URL"`
	SessionTTL         time.Duration `envconfig:"SESSION_TTL" default:"168h"`

	// Uploads
	UploadMaxBytes int64 `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`
	UploadMaxRows  int   `envconfig:"UPLOAD_MAX_ROWS" default:"10000"`

	// AMQP (optional)
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"profitdash"`
	AMQPQueue    string `envconfig:"AMQP_QUEUE" default:"products_uploaded"`

	// Google Sheets export (worker)
	GoogleSpreadsheetID      string `envconfig:"GOOGLE_SPREADSHEET_ID"`
	GoogleServiceAccountFile string `envconfig:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleServiceAccountJSON string `envconfig:"GOOGLE_SERVICE_ACCOUNT_JSON"`

	// Chatbot
	ChatTypingDelay time.Duration `envconfig:"CHAT_TYPING_DELAY" default:"1500ms"`

	// Rate limiting
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return &cfg, nil
}

// StorageDialect returns the SQL dialect used for users, sessions and, for the
// sql backends, products. The memory product backend still keeps sessions in sqlite.
func (c *Config) StorageDialect() string {
	if c.DataBackend == BackendPostgres {
		return BackendPostgres
	}
	return BackendSQLite
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.StorageDialect() {
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL '%s': must be a postgres:// URL", redact(c.DatabaseURL)))
		}
	}

	switch c.AuthProvider {
	case AuthDev:
	case AuthGoogle:
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			errors = append(errors, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required for google auth")
		}
		if c.OAuthRedirectURL == "" {
			errors = append(errors, "OAUTH_REDIRECT_URL is required for google auth")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid auth provider '%s': must be one of [%s %s]", c.AuthProvider, AuthGoogle, AuthDev))
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}

	if c.UploadMaxBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid upload max bytes %d: must be at least 1024", c.UploadMaxBytes))
	}
	if c.UploadMaxRows < 1 {
		errors = append(errors, fmt.Sprintf("invalid upload max rows %d: must be at least 1", c.UploadMaxRows))
	}

	// AMQP is optional; when set it must be well formed.
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", redact(c.AMQPURL), err))
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

	if c.ChatTypingDelay < 0 || c.ChatTypingDelay > 30*time.Second {
		errors = append(errors, fmt.Sprintf("invalid chat typing delay %v: must be between 0 and 30s", c.ChatTypingDelay))
	}

	if c.RateLimitRPS <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %v: must be positive", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit burst %d: must be at least 1", c.RateLimitBurst))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker checks the settings the export worker needs on top of Validate.
func (c *Config) ValidateWorker() error {
	var errors []string
	if c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the export worker")
	}
	if c.DataBackend == BackendMemory {
		errors = append(errors, "export worker needs a sql data backend (sqlite or postgres)")
	}
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "GOOGLE_SPREADSHEET_ID is required for the export worker")
	}
	if len(errors) > 0 {
		return fmt.Errorf("worker configuration invalid:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// redact hides URL credentials before they end up in an error message.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
