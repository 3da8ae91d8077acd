package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/llmops/session-fallback/services/matcher"
	"github.com/llmops/session-fallback/utils"
)

// Config represents the complete daemon configuration.
type Config struct {
	Host          HostConfig
	Fallback      FallbackConfig
	Admin         AdminConfig
	AuditDatabase *DatabaseConfig // Optional: nil disables the audit sink.
	Observability ObservabilityConfig
	Environment   string
}

// HostConfig holds connection settings for the agent-platform host.
type HostConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// FallbackConfig holds the fallback state machine settings.
type FallbackConfig struct {
	// Enabled gates all event handling. When false the daemon never
	// subscribes to the host's event stream.
	Enabled bool

	// Model is the fallback backend identity in provider/model form.
	Model string `validate:"required"`

	// Cooldown is the suppression window after a fallback triggers.
	Cooldown time.Duration `validate:"gt=0"`

	// SettleDelay is the pause after abort and revert host calls.
	SettleDelay time.Duration `validate:"gte=0"`

	// Patterns are the case-insensitive substrings that mark a retry
	// message as a rate-limit condition.
	Patterns []string `validate:"min=1,dive,required"`

	// Logging toggles the controller's informational logging.
	Logging bool
}

// AdminConfig holds the read-only admin HTTP server configuration.
type AdminConfig struct {
	Enabled         bool
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration for the audit sink.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence
// over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ObservabilityConfig holds logging configuration.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a Config instance by loading environment variables.
func New() (*Config, error) {
	// Load .env if present.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Host: HostConfig{
			BaseURL:    getEnv("HOST_BASE_URL", "http://127.0.0.1:4096"),
			APIKey:     getEnv("HOST_API_KEY", ""),
			Timeout:    getEnvAsDuration("HOST_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvAsInt("HOST_MAX_RETRIES", 2),
			RetryDelay: getEnvAsDuration("HOST_RETRY_DELAY", time.Second),
		},
		Fallback: FallbackConfig{
			Enabled:     getEnvAsBool("FALLBACK_ENABLED", true),
			Model:       getEnv("FALLBACK_MODEL", ""),
			Cooldown:    getEnvAsDuration("FALLBACK_COOLDOWN", time.Minute),
			SettleDelay: getEnvAsDuration("FALLBACK_SETTLE_DELAY", 100*time.Millisecond),
			Patterns:    getEnvAsSlice("FALLBACK_PATTERNS", matcher.DefaultPatterns),
			Logging:     getEnvAsBool("FALLBACK_LOGGING", true),
		},
		Admin: AdminConfig{
			Enabled:         getEnvAsBool("ADMIN_ENABLED", true),
			Host:            getEnv("ADMIN_HOST", "127.0.0.1"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("ADMIN_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("ADMIN_WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getEnvAsDuration("ADMIN_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		AuditDatabase: loadAuditDatabaseConfig(),
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Host.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("host base URL %q is not a valid URL", c.Host.BaseURL)
	}

	if c.Fallback.Enabled {
		if err := utils.ValidateStruct(c.Fallback); err != nil {
			return fmt.Errorf("fallback config: %w", err)
		}
		if !strings.Contains(c.Fallback.Model, "/") {
			return fmt.Errorf("fallback model %q must be provider/model", c.Fallback.Model)
		}
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", c.Observability.LogFormat)
	}

	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadAuditDatabaseConfig loads audit DB config from DATABASE_URL or
// DB_* env vars. Returns nil when neither is set (audit disabled).
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", ""),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "fallback_audit"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the admin server listen address.
func (c *AdminConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the admin port from PORT or ADMIN_PORT (default: 8484).
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("ADMIN_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8484
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
