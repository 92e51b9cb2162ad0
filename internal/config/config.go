package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port string

	// Database configuration
	DBType                string // mysql, postgres, sqlite, sqlserver
	DBHost                string
	DBPort                string
	DBDatabase            string
	DBAppUser             string
	DBAppPassword         string
	DBAppConnectionLimit  int
	DBReadUser            string
	DBReadPassword        string
	DBReadConnectionLimit int
	DBLogLevel            string
	DBAutoMigrate         bool

	// Authorizer configuration, auth is disabled when AuthzURL is empty
	AuthzURL      string
	AuthzClientID string

	// Redis for live ingestion status, in-memory when empty
	RedisURL string

	// Uploads and ingestion
	UploadFolder            string
	WatchFolder             string
	MaxUploadBytes          int64
	CasesPerPage            int
	RowsPerPage             int
	MaxConcurrentIngestions int
	IngestBatchSize         int
	UploadRatePerMinute     int

	// Retention
	RetentionDays   int
	CleanupSchedule string

	// Logging
	LogLevel  string
	LogFormat string

	// Shutdown
	ShutdownTimeout time.Duration
}

// Load loads configuration from environment variables.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "3000"),
		DBType:                  strings.ToLower(getEnv("DB_TYPE", "postgres")),
		DBHost:                  getEnv("DB_HOST", "localhost"),
		DBDatabase:              getEnv("DB_DATABASE", ""),
		DBAppUser:               getEnv("DB_APP_USER", ""),
		DBAppPassword:           getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit:    getEnvAsInt("DB_APP_CONNECTION_LIMIT", 10),
		DBReadConnectionLimit:   getEnvAsInt("DB_READ_CONNECTION_LIMIT", 5),
		DBLogLevel:              getEnv("DB_LOG_LEVEL", "warn"),
		DBAutoMigrate:           getEnvAsBool("DB_AUTO_MIGRATE", true),
		AuthzURL:                getEnv("AUTHZ_URL", ""),
		AuthzClientID:           getEnv("AUTHZ_CLIENT_ID", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		UploadFolder:            getEnv("UPLOAD_FOLDER", "./uploads"),
		WatchFolder:             getEnv("WATCH_FOLDER", ""),
		MaxUploadBytes:          getEnvAsInt64("MAX_UPLOAD_BYTES", 500<<20),
		CasesPerPage:            getEnvAsInt("CASES_PER_PAGE", 20),
		RowsPerPage:             getEnvAsInt("ROWS_PER_PAGE", 50),
		MaxConcurrentIngestions: getEnvAsInt("MAX_CONCURRENT_INGESTIONS", 3),
		IngestBatchSize:         getEnvAsInt("INGEST_BATCH_SIZE", 500),
		UploadRatePerMinute:     getEnvAsInt("UPLOAD_RATE_PER_MINUTE", 30),
		RetentionDays:           getEnvAsInt("RETENTION_DAYS", 30),
		CleanupSchedule:         getEnv("CLEANUP_SCHEDULE", "0 0 3 * * *"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "text"),
		ShutdownTimeout:         getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}
	cfg.DBPort = getEnv("DB_PORT", defaultPort(cfg.DBType))
	cfg.DBReadUser = getEnv("DB_READ_USER", cfg.DBAppUser)
	cfg.DBReadPassword = getEnv("DB_READ_PASSWORD", cfg.DBAppPassword)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and value ranges
func (cfg *Config) Validate() error {
	switch cfg.DBType {
	case "postgres", "postgresql", "mysql", "mariadb", "sqlite", "sqlserver", "mssql":
	default:
		return fmt.Errorf("DB_TYPE %q is not supported", cfg.DBType)
	}
	if cfg.DBDatabase == "" {
		return fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.DBType != "sqlite" && cfg.DBAppUser == "" {
		return fmt.Errorf("DB_APP_USER is required")
	}
	if cfg.AuthzURL != "" && cfg.AuthzClientID == "" {
		return fmt.Errorf("AUTHZ_CLIENT_ID is required when AUTHZ_URL is set")
	}
	if cfg.MaxConcurrentIngestions < 1 {
		return fmt.Errorf("MAX_CONCURRENT_INGESTIONS must be at least 1")
	}
	if cfg.IngestBatchSize < 1 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be at least 1")
	}
	if cfg.MaxUploadBytes < 1 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// AuthEnabled reports whether session validation is configured
func (cfg *Config) AuthEnabled() bool {
	return cfg.AuthzURL != ""
}

func defaultPort(dbType string) string {
	switch dbType {
	case "mysql", "mariadb":
		return "3306"
	case "sqlserver", "mssql":
		return "1433"
	case "sqlite":
		return ""
	default:
		return "5432"
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
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
