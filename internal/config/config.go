// Package config provides unified configuration for the spend engine.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for one engine process.
type Config struct {
	// Dataset is the dataset root URL or path opened at startup. Optional;
	// the host may instead send the root in its INIT message.
	Dataset string `json:"dataset" yaml:"dataset"`

	// PageSize is the default query page size when a request omits one.
	PageSize int `json:"page_size" yaml:"page_size"`

	// FetchTimeout bounds each chunk or index fetch.
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout"`

	// EventBuffer is the outbound event channel capacity.
	EventBuffer int `json:"event_buffer" yaml:"event_buffer"`

	// S3 configuration (for s3:// dataset roots)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 fetch configuration.
type S3Config struct {
	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (MinIO and friends)
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PageSize:     50,
		FetchTimeout: 30 * time.Second,
		EventBuffer:  64,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must not be negative, got %s", c.FetchTimeout)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SPENDENGINE_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SPENDENGINE_DATASET"); v != "" {
		cfg.Dataset = v
	}
	if v := os.Getenv("SPENDENGINE_PAGE_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.PageSize)
	}
	if v := os.Getenv("SPENDENGINE_EVENT_BUFFER"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.EventBuffer)
	}
	if v := os.Getenv("SPENDENGINE_FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FetchTimeout = d
		}
	}
	if v := os.Getenv("SPENDENGINE_S3_REGION"); v != "" {
		cfg.S3.Region = v
	}
	if v := os.Getenv("SPENDENGINE_S3_ENDPOINT"); v != "" {
		cfg.S3.Endpoint = v
	}
	if v := os.Getenv("SPENDENGINE_S3_USE_PATH_STYLE"); v != "" {
		cfg.S3.UsePathStyle = v == "true" || v == "1"
	}
}
