package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 120, cfg.LLM.TimeoutSecs)
	assert.Equal(t, 30, cfg.Pipeline.StaleProcessingMinutes)
	assert.True(t, cfg.Observability.MetricsEnabled)
}

func TestLoad_RequiresProviderKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("STORAGE_TYPE", "s3")
	t.Setenv("STORAGE_S3_BUCKET", "accounts-uploads")
	t.Setenv("PIPELINE_STALE_PROCESSING_MINUTES", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "s3", cfg.Storage.Type)
	assert.Equal(t, "accounts-uploads", cfg.Storage.S3Bucket)
	assert.Equal(t, 15, cfg.Pipeline.StaleProcessingMinutes)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "api",
		Password: "secret",
		Database: "practice",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=api password=secret dbname=practice sslmode=require",
		db.DSN(),
	)
}
