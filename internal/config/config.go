package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Chat completion service
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	MaxTokens      int64         `mapstructure:"max_tokens"`
	Temperature    float64       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Extraction
	ChunkSize     int           `mapstructure:"chunk_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`

	// Outputs
	OutputDir string        `mapstructure:"output_dir"`
	HistoryDB string        `mapstructure:"history_db"`
	OutputTTL time.Duration `mapstructure:"output_ttl"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// HTTP server
	Port         string `mapstructure:"port"`
	ServerAPIKey string `mapstructure:"server_api_key"`

	// Worker pool
	WorkerCount  int `mapstructure:"worker_count"`
	MaxQueueSize int `mapstructure:"max_queue_size"`

	// Upload limits
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`

	// Job state
	JobTTL time.Duration `mapstructure:"job_ttl"`

	// PDF
	PDFFallbackPdftotext bool `mapstructure:"pdf_fallback_pdftotext"`

	// Per-model prices, keyed by model name or prefix.
	Pricing map[string]Price `mapstructure:"pricing"`
}

// Price is the USD cost per 1K tokens for one model.
type Price struct {
	PromptPer1K     float64 `mapstructure:"prompt_per_1k"`
	CompletionPer1K float64 `mapstructure:"completion_per_1k"`
}

func defaults() map[string]any {
	return map[string]any{
		"api_key":         "",
		"base_url":        "",
		"model":           "gpt-4",
		"max_tokens":      1500,
		"temperature":     0.2,
		"request_timeout": "60s",

		"chunk_size":     1500,
		"concurrency":    1,
		"retry_attempts": 1,
		"retry_delay":    "1s",

		"output_dir": "data/output",
		"history_db": "data/history.db",
		"output_ttl": "168h",

		"log_level":  "info",
		"log_format": "text",

		"port":           "8090",
		"server_api_key": "",

		"worker_count":   4,
		"max_queue_size": 100,

		"max_upload_bytes": 52428800, // 50MB

		"job_ttl": "1h",

		"pdf_fallback_pdftotext": true,

		"pricing": map[string]any{
			"gpt-4": map[string]any{"prompt_per_1k": 0.03, "completion_per_1k": 0.06},
		},
	}
}

// Load reads configuration from defaults, an optional YAML file and LOSSRUN_*
// environment variables, in increasing order of precedence. An empty cfgFile
// searches for config.yaml in . and $HOME/.lossrun; a missing file is fine.
func Load(cfgFile string) (Config, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("LOSSRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The conventional OpenAI variable works too.
	if err := v.BindEnv("api_key", "LOSSRUN_API_KEY", "OPENAI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api_key: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.lossrun")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1500
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1500
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 1
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 52428800
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 1 * time.Hour
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.Model == "" {
		c.Model = "gpt-4"
	}
}

// Validate checks what every command needs.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (set LOSSRUN_API_KEY or OPENAI_API_KEY)")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.Temperature)
	}
	return nil
}

// ValidateServer adds the checks needed before serving HTTP.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ServerAPIKey == "" {
		return fmt.Errorf("server_api_key is required (set LOSSRUN_SERVER_API_KEY)")
	}
	return nil
}
