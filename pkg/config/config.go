// pkg/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Reference data backend: "postgres" or "yaml"
	StoreBackend string

	// Database connections
	Postgres  *PostgresConfig
	Snowflake *SnowflakeConfig

	// YAML-backed reference data (used when StoreBackend == "yaml")
	HeadersFile string
	RulesFile   string
	RatesFile   string

	// Currency normalization
	BaseCurrency   string
	RateFeedURL    string
	RateFeedWindow time.Duration
	RateCacheTTL   time.Duration
	RuleCacheTTL   time.Duration
	HeaderCacheTTL time.Duration

	// Enrichment settings
	ChunkSize         int
	WorkerPoolSize    int
	ValidationWorkers int

	// Session retention
	SessionTTL      time.Duration
	JanitorInterval time.Duration

	// HTTP server
	ListenAddr    string
	MaxUploadSize int64

	// Notification
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SMTPFrom        string
	ReviewRecipient string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "yaml")),

		HeadersFile: getEnv("HEADERS_FILE", "config/headers.yaml"),
		RulesFile:   getEnv("RULES_FILE", "config/vat_rules.yaml"),
		RatesFile:   getEnv("RATES_FILE", ""),

		BaseCurrency:   getEnv("BASE_CURRENCY", "EUR"),
		RateFeedURL:    getEnv("RATE_FEED_URL", ""),
		RateFeedWindow: time.Duration(getEnvAsInt("RATE_FEED_WINDOW_DAYS", 365)) * 24 * time.Hour,
		RateCacheTTL:   time.Duration(getEnvAsInt("RATE_CACHE_TTL_SECONDS", 3600)) * time.Second,
		RuleCacheTTL:   time.Duration(getEnvAsInt("RULE_CACHE_TTL_SECONDS", 3600)) * time.Second,
		HeaderCacheTTL: time.Duration(getEnvAsInt("HEADER_CACHE_TTL_SECONDS", 3600)) * time.Second,

		ChunkSize:         getEnvAsInt("CHUNK_SIZE", 1000),
		WorkerPoolSize:    getEnvAsInt("WORKER_POOL_SIZE", 4),
		ValidationWorkers: getEnvAsInt("VALIDATION_WORKERS", 0), // 0 means one per column

		SessionTTL:      time.Duration(getEnvAsInt("SESSION_TTL_SECONDS", 7200)) * time.Second,
		JanitorInterval: time.Duration(getEnvAsInt("JANITOR_INTERVAL_SECONDS", 600)) * time.Second,

		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		MaxUploadSize: int64(getEnvAsInt("MAX_UPLOAD_SIZE_MB", 32)) << 20,

		SMTPHost:        getEnv("SMTP_HOST", ""),
		SMTPPort:        getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:        getEnv("SMTP_USER", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:        getEnv("SMTP_FROM", ""),
		ReviewRecipient: getEnv("REVIEW_RECIPIENT", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if cfg.StoreBackend == "postgres" {
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, errors.New("failed to load PostgreSQL configuration: " + err.Error())
		}
		cfg.Postgres = pgConfig
	}

	// Snowflake is optional; only loaded when the warehouse ingestion
	// path is configured
	if os.Getenv("SNOWFLAKE_ACCOUNT") != "" {
		snowConfig, err := LoadSnowflakeConfig()
		if err != nil {
			return nil, errors.New("failed to load Snowflake configuration: " + err.Error())
		}
		cfg.Snowflake = snowConfig
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "postgres":
		if c.Postgres == nil {
			return errors.New("postgres backend selected but PostgreSQL configuration is missing")
		}
	case "yaml":
		if c.HeadersFile == "" || c.RulesFile == "" {
			return errors.New("yaml backend requires HEADERS_FILE and RULES_FILE")
		}
	default:
		return errors.New("STORE_BACKEND must be \"postgres\" or \"yaml\"")
	}

	if len(c.BaseCurrency) != 3 {
		return errors.New("base currency must be a 3-letter code")
	}

	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}

	if c.WorkerPoolSize <= 0 {
		return errors.New("worker pool size must be positive")
	}

	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}

	return nil
}

// NotifyEnabled reports whether outbound mail is configured
func (c *Config) NotifyEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != "" && c.ReviewRecipient != ""
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
