package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Storage       StorageConfig
	LLM           LLMConfig
	Observability ObservabilityConfig
	Pipeline      PipelineConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	BaseURL            string
	RateLimitPerSecond int
	RateLimitBurst     int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// StorageConfig selects the object storage backend holding uploaded documents.
type StorageConfig struct {
	Type      string // "local" or "s3"
	LocalPath string

	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string
}

// LLMConfig configures the completion provider used for extraction.
type LLMConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	TimeoutSecs int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	MetricsPort    int
}

// PipelineConfig tunes the extraction pipeline.
type PipelineConfig struct {
	// StaleProcessingMinutes is how long an upload may sit in "processing"
	// before the sweeper marks it failed.
	StaleProcessingMinutes int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// a .env file is optional; deployed environments set variables directly
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 100),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 200),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "practice-dev"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Type:              getEnv("STORAGE_TYPE", "local"),
			LocalPath:         getEnv("STORAGE_LOCAL_PATH", "./uploads"),
			S3Bucket:          getEnv("STORAGE_S3_BUCKET", ""),
			S3Region:          getEnv("STORAGE_S3_REGION", ""),
			S3AccessKeyID:     getEnv("STORAGE_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("STORAGE_S3_SECRET_ACCESS_KEY", ""),
			S3Endpoint:        getEnv("STORAGE_S3_ENDPOINT", ""),
		},
		LLM: LLMConfig{
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			TimeoutSecs: getEnvAsInt("LLM_TIMEOUT_SECONDS", 120),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
		},
		Pipeline: PipelineConfig{
			StaleProcessingMinutes: getEnvAsInt("PIPELINE_STALE_PROCESSING_MINUTES", 30),
		},
	}

	// The extraction pipeline cannot run without a provider credential;
	// fail at startup rather than on the first upload.
	if cfg.LLM.APIKey == "" {
		return nil, errors.New("LLM_API_KEY is required")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
