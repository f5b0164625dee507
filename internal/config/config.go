// Package config loads the persistent livelog configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abelbrown/livelog/internal/logging"
)

// Config is the persistent application configuration
type Config struct {
	Store  StoreConfig  `json:"store"`
	Paging PagingConfig `json:"paging"`
	Live   LiveConfig   `json:"live"`
	Server ServerConfig `json:"server"`
	Client ClientConfig `json:"client"`
	Log    LogConfig    `json:"log"`
}

// StoreConfig selects the backing database.
type StoreConfig struct {
	Driver string `json:"driver"`        // "sqlite" or "postgres"
	Path   string `json:"path"`          // SQLite file
	DSN    string `json:"dsn,omitempty"` // Postgres connection string
}

// PagingConfig tunes the page fetcher.
type PagingConfig struct {
	PageSize       int `json:"page_size"`
	QueryTimeoutMs int `json:"query_timeout_ms"`
}

// LiveConfig tunes live mode.
type LiveConfig struct {
	PollIntervalMs int `json:"poll_interval_ms"` // measured from the end of the previous poll
}

// ServerConfig holds livelogd settings.
type ServerConfig struct {
	Addr string `json:"addr"`
}

// ClientConfig holds settings for talking to a remote livelogd.
type ClientConfig struct {
	ServerURL         string  `json:"server_url,omitempty"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level      string `json:"level"`
	EventsPath string `json:"events_path"` // JSONL event log
}

// Dir returns the livelog home directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".livelog")
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(dir, "livelog.db"),
		},
		Paging: PagingConfig{
			PageSize:       40,
			QueryTimeoutMs: 10_000,
		},
		Live: LiveConfig{
			PollIntervalMs: 5000,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:7420",
		},
		Client: ClientConfig{
			RequestsPerSecond: 5,
			Burst:             2,
		},
		Log: LogConfig{
			Level:      "info",
			EventsPath: filepath.Join(dir, "events.jsonl"),
		},
	}
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads config from disk, or returns defaults. Environment overrides
// are applied last.
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom reads config from path. A missing file yields defaults; a file
// that does not parse is reported and replaced by defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			logging.Warn("config file unreadable, using defaults", "path", path, "error", err)
			cfg = DefaultConfig()
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes config to path.
func (c *Config) SaveTo(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600) // may hold a DSN with credentials
}

// ApplyEnv overrides fields from LIVELOG_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("LIVELOG_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("LIVELOG_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("LIVELOG_DSN"); v != "" {
		c.Store.DSN = v
		if os.Getenv("LIVELOG_DRIVER") == "" {
			c.Store.Driver = "postgres"
		}
	}
	if v := os.Getenv("LIVELOG_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("LIVELOG_SERVER"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv("LIVELOG_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LIVELOG_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LIVELOG_PAGE_SIZE: %w", err)
		}
		c.Paging.PageSize = n
	}
	if v := os.Getenv("LIVELOG_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LIVELOG_POLL_INTERVAL: %w", err)
		}
		c.Live.PollIntervalMs = int(d / time.Millisecond)
	}
	return nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Driver) {
	case "", "sqlite", "sqlite3":
		if c.Store.Path == "" {
			return errors.New("config: store.path is required for sqlite")
		}
	case "postgres", "postgresql", "pg":
		if c.Store.DSN == "" {
			return errors.New("config: store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Paging.PageSize <= 0 {
		return fmt.Errorf("config: paging.page_size must be positive, got %d", c.Paging.PageSize)
	}
	if c.Paging.QueryTimeoutMs < 0 {
		return fmt.Errorf("config: paging.query_timeout_ms must not be negative")
	}
	if c.Live.PollIntervalMs <= 0 {
		return fmt.Errorf("config: live.poll_interval_ms must be positive, got %d", c.Live.PollIntervalMs)
	}
	if c.Client.RequestsPerSecond < 0 {
		return fmt.Errorf("config: client.requests_per_second must not be negative")
	}
	return nil
}

// StoreTarget returns the path or DSN to open for the configured driver.
func (c *Config) StoreTarget() string {
	switch strings.ToLower(c.Store.Driver) {
	case "postgres", "postgresql", "pg":
		return c.Store.DSN
	}
	return c.Store.Path
}

// QueryTimeout returns the per-query bound, zero when disabled.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Paging.QueryTimeoutMs) * time.Millisecond
}

// PollInterval returns the live-mode interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Live.PollIntervalMs) * time.Millisecond
}
