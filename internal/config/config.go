// Package config loads runtime configuration from the environment, with a
// .env file picked up when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names
const (
	EnvDatabaseURL    = "DATABASE_URL"
	EnvEmbedProvider  = "EMBEDDING_PROVIDER"
	EnvEmbedModel     = "EMBEDDING_MODEL"
	EnvEmbedDimension = "EMBEDDING_DIMENSIONS"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvJinaKey        = "JINA_API_KEY"
	EnvFirecrawlURL   = "FIRECRAWL_API_URL"
	EnvFirecrawlKey   = "FIRECRAWL_API_KEY"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
)

// Config is the resolved runtime configuration.
type Config struct {
	DatabaseURL string

	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	OpenAIKey           string
	JinaKey             string

	FirecrawlURL string
	FirecrawlKey string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first and never overrides real environment variables.
func Load() (*Config, error) {
	// Missing .env is the normal case
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:       os.Getenv(EnvDatabaseURL),
		EmbeddingProvider: os.Getenv(EnvEmbedProvider),
		EmbeddingModel:    os.Getenv(EnvEmbedModel),
		OpenAIKey:         os.Getenv(EnvOpenAIKey),
		JinaKey:           os.Getenv(EnvJinaKey),
		FirecrawlURL:      os.Getenv(EnvFirecrawlURL),
		FirecrawlKey:      os.Getenv(EnvFirecrawlKey),
		LogLevel:          os.Getenv(EnvLogLevel),
		LogFormat:         os.Getenv(EnvLogFormat),
	}

	if raw := os.Getenv(EnvEmbedDimension); raw != "" {
		dim, err := strconv.Atoi(raw)
		if err != nil || dim <= 0 {
			return nil, fmt.Errorf("invalid %s value %q", EnvEmbedDimension, raw)
		}
		cfg.EmbeddingDimensions = dim
	}

	if cfg.DatabaseURL == "" {
		path, err := DefaultDatabasePath()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = path
	}

	return cfg, nil
}

// EmbeddingKey returns the API key for the configured embedding provider.
func (c *Config) EmbeddingKey() string {
	if c.EmbeddingProvider == "jina" {
		return c.JinaKey
	}
	return c.OpenAIKey
}

// DefaultDatabasePath resolves $XDG_DATA_HOME/mcp-docs/docs.db, falling
// back to ~/.local/share, and creates the directory.
func DefaultDatabasePath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	dir := filepath.Join(dataHome, "mcp-docs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return filepath.Join(dir, "docs.db"), nil
}
