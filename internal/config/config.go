// Package config provides configuration management for daybook.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/daybooklabs/daybook/pkg/models"
)

const (
	// DefaultPort is the HTTP listen port when nothing overrides it.
	DefaultPort = 37600

	// DefaultMaxConns bounds the SQLite connection pool.
	DefaultMaxConns = 4

	// DefaultUndoWindowSeconds is how long deleted review items stay
	// restorable.
	DefaultUndoWindowSeconds = 30

	// DefaultParseTimeoutSeconds bounds one extraction run.
	DefaultParseTimeoutSeconds = 10
)

// Config holds runtime settings, loaded from the YAML settings file with
// environment overrides for the port.
type Config struct {
	Port                int                     `yaml:"port"`
	DBPath              string                  `yaml:"db_path"`
	MaxConns            int                     `yaml:"max_conns"`
	LogLevel            string                  `yaml:"log_level"`
	UndoWindowSeconds   int                     `yaml:"undo_window_seconds"`
	ParseTimeoutSeconds int                     `yaml:"parse_timeout_seconds"`
	CustomCategories    []models.CategoryConfig `yaml:"custom_categories"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:                DefaultPort,
		DBPath:              DBPath(),
		MaxConns:            DefaultMaxConns,
		LogLevel:            "info",
		UndoWindowSeconds:   DefaultUndoWindowSeconds,
		ParseTimeoutSeconds: DefaultParseTimeoutSeconds,
	}
}

// DataDir returns the daybook data directory (~/.daybook).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".daybook")
}

// DBPath returns the default database path.
func DBPath() string {
	return filepath.Join(DataDir(), "daybook.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll initializes the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads the settings file, applying defaults for anything unset.
// A missing or malformed file yields the defaults, never an error the
// caller has to handle at startup.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		return cfg, nil
	}
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg, nil
	}

	if loaded.Port > 0 {
		cfg.Port = loaded.Port
	}
	if loaded.DBPath != "" {
		cfg.DBPath = loaded.DBPath
	}
	if loaded.MaxConns > 0 {
		cfg.MaxConns = loaded.MaxConns
	}
	if loaded.LogLevel != "" {
		cfg.LogLevel = loaded.LogLevel
	}
	if loaded.UndoWindowSeconds > 0 {
		cfg.UndoWindowSeconds = loaded.UndoWindowSeconds
	}
	if loaded.ParseTimeoutSeconds > 0 {
		cfg.ParseTimeoutSeconds = loaded.ParseTimeoutSeconds
	}
	cfg.CustomCategories = loaded.CustomCategories
	return cfg, nil
}

var (
	cached   *Config
	cacheMu  sync.Mutex
	cacheSet bool
)

// Get returns the cached configuration, loading it on first use.
func Get() *Config {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if !cacheSet {
		cached, _ = Load()
		cacheSet = true
	}
	return cached
}

// Reset clears the cached configuration so the next Get reloads it. Used
// when the settings file changes on disk.
func Reset() {
	cacheMu.Lock()
	cached = nil
	cacheSet = false
	cacheMu.Unlock()
}

// GetPort returns the listen port, preferring the DAYBOOK_PORT
// environment variable over the settings file.
func GetPort() int {
	if env := os.Getenv("DAYBOOK_PORT"); env != "" {
		if port, err := strconv.Atoi(env); err == nil && port > 0 {
			return port
		}
	}
	return Get().Port
}

// CategorySet builds the active category set from the defaults plus any
// configured extensions.
func (c *Config) CategorySet() *models.CategorySet {
	return models.NewCategorySet(c.CustomCategories...)
}
