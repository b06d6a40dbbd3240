package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const defaultSessionSecret = "a_very_long_and_random_secret_string"

// APIKeys holds the API keys for the generation providers and the studio itself.
type APIKeys struct {
	OpenAI    string `json:"OPENAI_API_KEY" toml:"OPENAI_API_KEY"`
	Stability string `json:"STABILITY_API_KEY" toml:"STABILITY_API_KEY"`
	Replicate string `json:"REPLICATE_API_TOKEN" toml:"REPLICATE_API_TOKEN"`
	Runway    string `json:"RUNWAY_API_KEY" toml:"RUNWAY_API_KEY"`
	Studio    string `json:"STUDIO_API_KEY" toml:"STUDIO_API_KEY"`
}

// ImageHost holds the credentials for the reference image host.
type ImageHost struct {
	APIKey  string `json:"NODEIMAGE_API_KEY" toml:"NODEIMAGE_API_KEY"`
	BaseURL string `json:"NODEIMAGE_BASE_URL" toml:"NODEIMAGE_BASE_URL"`
}

// Settings holds optional application settings.
type Settings struct {
	SaveLocalCopy       bool   `json:"SAVE_LOCAL_COPY" toml:"SAVE_LOCAL_COPY"`
	UploadToImageHost   bool   `json:"UPLOAD_TO_IMAGE_HOST" toml:"UPLOAD_TO_IMAGE_HOST"`
	WebPassword         string `json:"WEB_PASSWORD" toml:"WEB_PASSWORD"`
	SessionSecret       string `json:"SESSION_SECRET" toml:"SESSION_SECRET"`
	DataDir             string `json:"DATA_DIR" toml:"DATA_DIR"`
	ListenAddr          string `json:"LISTEN_ADDR" toml:"LISTEN_ADDR"`
	LogLevel            string `json:"LOG_LEVEL" toml:"LOG_LEVEL"`
	LogFormat           string `json:"LOG_FORMAT" toml:"LOG_FORMAT"`
	PollIntervalSeconds int    `json:"POLL_INTERVAL_SECONDS" toml:"POLL_INTERVAL_SECONDS"`
	MaxPollAttempts     int    `json:"MAX_POLL_ATTEMPTS" toml:"MAX_POLL_ATTEMPTS"`
	MaxBatchSize        int    `json:"MAX_BATCH_SIZE" toml:"MAX_BATCH_SIZE"`
	RateLimitPerMinute  int    `json:"RATE_LIMIT_PER_MINUTE" toml:"RATE_LIMIT_PER_MINUTE"`
}

// Config holds the entire application configuration.
type Config struct {
	APIKeys   APIKeys   `json:"API_KEYS" toml:"API_KEYS"`
	ImageHost ImageHost `json:"IMAGE_HOST" toml:"IMAGE_HOST"`
	Settings  Settings  `json:"SETTINGS" toml:"SETTINGS"`

	source string
}

// Default returns the configuration used before any file or environment is applied.
func Default() *Config {
	return &Config{
		Settings: Settings{
			SaveLocalCopy:      true,
			UploadToImageHost:  true,
			SessionSecret:      defaultSessionSecret,
			DataDir:            "data",
			ListenAddr:         ":8080",
			LogLevel:           "info",
			LogFormat:          "console",
			MaxBatchSize:       4,
			RateLimitPerMinute: 30,
		},
	}
}

// Load builds a configuration from defaults, the config file, .env, and
// environment variables, each layer overriding the previous one. An empty
// path looks for conf.json, then conf.toml, in the working directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}

	// .env never overrides variables that are already set in the process.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg.loadFromEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, name := range []string{"conf.json", "conf.toml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	c.source = path
	return nil
}

// Source is the config file that was read, or "" when none was found.
func (c *Config) Source() string {
	return c.source
}

// loadFromEnv loads configuration from environment variables, overriding existing values.
func (c *Config) loadFromEnv() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString(&c.APIKeys.OpenAI, "OPENAI_API_KEY")
	setString(&c.APIKeys.Stability, "STABILITY_API_KEY")
	setString(&c.APIKeys.Replicate, "REPLICATE_API_TOKEN")
	setString(&c.APIKeys.Runway, "RUNWAY_API_KEY")
	setString(&c.APIKeys.Studio, "STUDIO_API_KEY")

	setString(&c.ImageHost.APIKey, "NODEIMAGE_API_KEY")
	setString(&c.ImageHost.BaseURL, "NODEIMAGE_BASE_URL")

	setBool(&c.Settings.SaveLocalCopy, "SAVE_LOCAL_COPY")
	setBool(&c.Settings.UploadToImageHost, "UPLOAD_TO_IMAGE_HOST")
	setString(&c.Settings.WebPassword, "WEB_PASSWORD")
	setString(&c.Settings.SessionSecret, "SESSION_SECRET")
	setString(&c.Settings.DataDir, "DATA_DIR")
	setString(&c.Settings.ListenAddr, "LISTEN_ADDR")
	setString(&c.Settings.LogLevel, "LOG_LEVEL")
	setString(&c.Settings.LogFormat, "LOG_FORMAT")
	setInt(&c.Settings.PollIntervalSeconds, "POLL_INTERVAL_SECONDS")
	setInt(&c.Settings.MaxPollAttempts, "MAX_POLL_ATTEMPTS")
	setInt(&c.Settings.MaxBatchSize, "MAX_BATCH_SIZE")
	setInt(&c.Settings.RateLimitPerMinute, "RATE_LIMIT_PER_MINUTE")
}

func (c *Config) normalize() {
	c.Settings.LogFormat = strings.ToLower(strings.TrimSpace(c.Settings.LogFormat))
	c.Settings.LogLevel = strings.ToLower(strings.TrimSpace(c.Settings.LogLevel))
	c.Settings.DataDir = strings.TrimSpace(c.Settings.DataDir)
	if c.Settings.DataDir == "" {
		c.Settings.DataDir = "data"
	}
	if c.Settings.MaxBatchSize == 0 {
		c.Settings.MaxBatchSize = 4
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	s := c.Settings
	switch s.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("config: unsupported LOG_FORMAT %q", s.LogFormat)
	}
	if s.PollIntervalSeconds < 0 {
		return fmt.Errorf("config: POLL_INTERVAL_SECONDS must not be negative")
	}
	if s.MaxPollAttempts < 0 {
		return fmt.Errorf("config: MAX_POLL_ATTEMPTS must not be negative")
	}
	if s.MaxBatchSize < 1 {
		return fmt.Errorf("config: MAX_BATCH_SIZE must be at least 1")
	}
	if s.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return nil
}

// DefaultSessionSecret reports whether the session secret was left at its default.
func (c *Config) DefaultSessionSecret() bool {
	return c.Settings.SessionSecret == defaultSessionSecret
}

// DatabasePath is the SQLite gallery file inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Settings.DataDir, "studio.db")
}

// MediaDir is where local copies of generated media are written.
func (c *Config) MediaDir() string {
	return filepath.Join(c.Settings.DataDir, "media")
}

// LockPath is the single-instance lock file for the server.
func (c *Config) LockPath() string {
	return filepath.Join(c.Settings.DataDir, "studio.lock")
}
