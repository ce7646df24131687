// Package config loads the service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	// HorizonDays bounds how far past today an open-ended series is expanded.
	HorizonDays int `yaml:"horizon_days"`

	// MaxOccurrences caps every series expansion.
	MaxOccurrences int `yaml:"max_occurrences"`

	// FeedSyncIntervalMin is the default interval for feeds that do not set one.
	FeedSyncIntervalMin int `yaml:"feed_sync_interval_min"`

	// RedisURL enables publishing domain events to Redis when set.
	RedisURL     string `yaml:"redis_url"`
	RedisChannel string `yaml:"redis_channel"`
}

const (
	defaultListen          = ":8099"
	defaultDataDir         = "/data"
	defaultLogLevel        = "info"
	defaultHorizonDays     = 365
	defaultMaxOccurrences  = 5000
	defaultFeedSyncMinutes = 15
	defaultRedisChannel    = "event-series"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              defaultListen,
		DataDir:             defaultDataDir,
		LogLevel:            defaultLogLevel,
		HorizonDays:         defaultHorizonDays,
		MaxOccurrences:      defaultMaxOccurrences,
		FeedSyncIntervalMin: defaultFeedSyncMinutes,
		RedisChannel:        defaultRedisChannel,
	}
}

// Normalize fills in missing or out of range values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = defaultMaxOccurrences
	}
	if c.FeedSyncIntervalMin <= 0 {
		c.FeedSyncIntervalMin = defaultFeedSyncMinutes
	}
	if c.RedisChannel == "" {
		c.RedisChannel = defaultRedisChannel
	}
}

// Horizon returns HorizonDays as a duration.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.HorizonDays) * 24 * time.Hour
}

// DBPath returns the path of the SQLite database inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "event-series.db")
}

// Load reads the configuration at path and applies environment overrides.
// A missing file is created with the defaults (mode 0600) on first run.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from EVENTSERIES_* environment variables.
func (c *Config) ApplyEnv() {
	c.Listen = getEnv("EVENTSERIES_LISTEN", c.Listen)
	c.DataDir = getEnv("EVENTSERIES_DATA_DIR", c.DataDir)
	c.LogLevel = getEnv("EVENTSERIES_LOG_LEVEL", c.LogLevel)
	c.LogPretty = getEnvAsBool("EVENTSERIES_LOG_PRETTY", c.LogPretty)
	c.HorizonDays = getEnvAsInt("EVENTSERIES_HORIZON_DAYS", c.HorizonDays)
	c.MaxOccurrences = getEnvAsInt("EVENTSERIES_MAX_OCCURRENCES", c.MaxOccurrences)
	c.FeedSyncIntervalMin = getEnvAsInt("EVENTSERIES_FEED_SYNC_INTERVAL_MIN", c.FeedSyncIntervalMin)
	c.RedisURL = getEnv("EVENTSERIES_REDIS_URL", c.RedisURL)
	c.RedisChannel = getEnv("EVENTSERIES_REDIS_CHANNEL", c.RedisChannel)
}

// Save writes cfg to path atomically via a temp file and rename. The parent
// directory is created with 0700 and the file ends up 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".event-series-config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp config: %w", err)
	}

	return os.Rename(tmpName, path)
}

// getEnv returns an environment variable value or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
