package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "gpt-4", cfg.Model)
	assert.Equal(t, 1500, cfg.ChunkSize)
	assert.EqualValues(t, 1500, cfg.MaxTokens)
	assert.InDelta(t, 0.2, cfg.Temperature, 1e-9)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 1, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, "data/output", cfg.OutputDir)
	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, time.Hour, cfg.JobTTL)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.PDFFallbackPdftotext)
	require.Contains(t, cfg.Pricing, "gpt-4")
	assert.InDelta(t, 0.06, cfg.Pricing["gpt-4"].CompletionPer1K, 1e-9)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
model: gpt-4o-mini
chunk_size: 800
temperature: 0
job_ttl: 30m
pricing:
  custom-model:
    prompt_per_1k: 0.5
    completion_per_1k: 1.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 800, cfg.ChunkSize)
	assert.Zero(t, cfg.Temperature)
	assert.Equal(t, 30*time.Minute, cfg.JobTTL)
	require.Contains(t, cfg.Pricing, "custom-model")
	assert.InDelta(t, 0.5, cfg.Pricing["custom-model"].PromptPer1K, 1e-9)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "chunk_size: 800\n")
	t.Setenv("LOSSRUN_CHUNK_SIZE", "1200")
	t.Setenv("LOSSRUN_WORKER_COUNT", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1200, cfg.ChunkSize)
	assert.Equal(t, 2, cfg.WorkerCount)
}

func TestLoad_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("LOSSRUN_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.APIKey)
}

func TestLoad_NonPositiveValuesNormalized(t *testing.T) {
	cfg, err := Load(writeConfig(t, "chunk_size: 0\nconcurrency: -3\nretry_attempts: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 1500, cfg.ChunkSize)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 1, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}

func TestLoad_BadFile(t *testing.T) {
	_, err := Load(writeConfig(t, "chunk_size: [\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Config{Temperature: 0.2}
	assert.Error(t, cfg.Validate())

	cfg.APIKey = "k"
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateServer())

	cfg.ServerAPIKey = "s"
	assert.NoError(t, cfg.ValidateServer())

	cfg.Temperature = 3
	assert.Error(t, cfg.Validate())
}
