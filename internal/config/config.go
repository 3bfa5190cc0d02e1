// Package config loads widget settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends for the session store.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

type Config struct {
	Socket  SocketConfig  `yaml:"socket" envPrefix:"LAUNCH_"`
	Widgets WidgetsConfig `yaml:"widgets" envPrefix:"LAUNCH_"`
	Session SessionConfig `yaml:"session" envPrefix:"LAUNCH_"`
	Mock    MockConfig    `yaml:"mock" envPrefix:"LAUNCH_MOCK_"`
}

type SocketConfig struct {
	URL                  string        `yaml:"url" env:"URL"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay" env:"RECONNECT_BASE_DELAY"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay" env:"RECONNECT_MAX_DELAY"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" env:"MAX_RECONNECT_ATTEMPTS"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL"`
}

type WidgetsConfig struct {
	StoreID string `yaml:"store_id" env:"STORE_ID"`
	FormID  string `yaml:"form_id" env:"FORM_ID"`
	// PageURL is the address checkout returns to.
	PageURL string `yaml:"page_url" env:"PAGE_URL"`
	// FormFields are the inputs the terminal form shows.
	FormFields []string `yaml:"form_fields" env:"FORM_FIELDS" envSeparator:","`
}

type SessionConfig struct {
	Storage  string `yaml:"storage" env:"STORAGE"`
	StateDir string `yaml:"state_dir" env:"STATE_DIR"`
}

type MockConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

func defaultConfig() *Config {
	return &Config{
		Socket: SocketConfig{
			URL:                "ws://127.0.0.1:4000/socket",
			ReconnectBaseDelay: time.Second,
			ReconnectMaxDelay:  30 * time.Second,
			HeartbeatInterval:  30 * time.Second,
		},
		Widgets: WidgetsConfig{
			StoreID:    "demo-store",
			FormID:     "newsletter",
			PageURL:    "http://127.0.0.1:4000/",
			FormFields: []string{"name", "email"},
		},
		Session: SessionConfig{
			Storage: StorageFile,
		},
		Mock: MockConfig{
			Host: "127.0.0.1",
			Port: 4000,
		},
	}
}

// Default returns the built-in settings.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadOrDefault is Load, except a missing file yields the defaults (still
// subject to environment overrides).
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}
	cfg := defaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the fields a widget cannot start without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Socket.URL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("socket.url %q is not a valid url", c.Socket.URL)
	}
	switch c.Session.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("session.storage %q: want %s, %s or %s", c.Session.Storage, StorageFile, StorageSQLite, StorageMemory)
	}
	if c.Socket.MaxReconnectAttempts < 0 {
		return fmt.Errorf("socket.max_reconnect_attempts must not be negative")
	}
	if c.Mock.Port < 0 || c.Mock.Port > 65535 {
		return fmt.Errorf("mock.port %d out of range", c.Mock.Port)
	}
	return nil
}

// Origin is the namespace session values are stored under: the scheme and
// host of the page URL.
func (c *Config) Origin() string {
	u, err := url.Parse(c.Widgets.PageURL)
	if err != nil || u.Host == "" {
		return c.Widgets.PageURL
	}
	return u.Scheme + "://" + u.Host
}

// DefaultPath returns ~/.config/launch-widgets/config.yaml, respecting
// XDG_CONFIG_HOME if set.
func DefaultPath() string {
	if base := os.Getenv("XDG_CONFIG_HOME"); base != "" {
		return filepath.Join(base, "launch-widgets", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "launch-widgets", "config.yaml")
}

// MockAddr is the mock server listen address.
func (c *Config) MockAddr() string {
	return fmt.Sprintf("%s:%d", c.Mock.Host, c.Mock.Port)
}
