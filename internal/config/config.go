package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Model    ModelConfig    `yaml:"model"`
	Cache    CacheConfig    `yaml:"cache"`
	Watch    WatchConfig    `yaml:"watch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig is where local_mp3 paths are resolved from.
type StorageConfig struct {
	Dir string `yaml:"dir"`
}

// ModelConfig selects the feature extraction model. Name, Channel and Dims
// are properties of the model and must agree with what it emits.
type ModelConfig struct {
	Name     string      `yaml:"name"`
	Channel  string      `yaml:"channel"`
	Dims     int         `yaml:"dims"`
	Provider string      `yaml:"provider"` // "command" or "http"
	Command  CommandLine `yaml:"command,omitempty"`
	BaseURL  string      `yaml:"base_url,omitempty"`
	Timeout  string      `yaml:"timeout,omitempty"` // per track, e.g. "5m"
}

// CacheConfig enables the on-disk extraction cache when Dir is set.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

type WatchConfig struct {
	Interval string `yaml:"interval"` // how often to look for pending tracks
	MinGap   string `yaml:"min_gap"`  // minimum time between two runs
	Notify   bool   `yaml:"notify"`   // also trigger on new files in storage.dir

	// RetryAfter pauses polling after a run in which every track failed.
	RetryAfter string `yaml:"retry_after"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when no file is given. The model
// defaults describe musicnn's MTT model and its penultimate layer.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "storage/db.db"},
		Storage:  StorageConfig{Dir: "storage"},
		Model: ModelConfig{
			Name:     "MTT_musicnn",
			Channel:  "penultimate",
			Dims:     200,
			Provider: "command",
			Command:  CommandLine{"python3", "musidex-neuralembed/extract.py"},
			BaseURL:  "http://localhost:8765",
			Timeout:  "10m",
		},
		Watch: WatchConfig{
			Interval:   "5s",
			MinGap:     "5s",
			Notify:     true,
			RetryAfter: "5m",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from a file on top of the defaults. An empty path
// or a missing file yields the defaults. Variables from a .env file in the
// working directory are loaded before environment overrides are applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv()
	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Override with environment variables if present
func (c *Config) applyEnv() {
	if v := os.Getenv("DB_LOCATION"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("EXTRACTOR_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Model.Channel == "" {
		return fmt.Errorf("model.channel is required")
	}
	if c.Model.Dims <= 0 {
		return fmt.Errorf("model.dims must be positive")
	}
	switch c.Model.Provider {
	case "command":
		if len(c.Model.Command) == 0 {
			return fmt.Errorf("model.command is required for the command provider")
		}
	case "http":
		if c.Model.BaseURL == "" {
			return fmt.Errorf("model.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("model.provider must be 'command' or 'http'")
	}
	for name, v := range map[string]string{
		"model.timeout":     c.Model.Timeout,
		"watch.interval":    c.Watch.Interval,
		"watch.min_gap":     c.Watch.MinGap,
		"watch.retry_after": c.Watch.RetryAfter,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (m ModelConfig) TimeoutDuration() time.Duration { return parseDuration(m.Timeout, 10*time.Minute) }

func (w WatchConfig) IntervalDuration() time.Duration { return parseDuration(w.Interval, 5*time.Second) }

func (w WatchConfig) MinGapDuration() time.Duration { return parseDuration(w.MinGap, 5*time.Second) }

func (w WatchConfig) RetryAfterDuration() time.Duration {
	return parseDuration(w.RetryAfter, 5*time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
