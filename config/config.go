// ABOUTME: Service configuration stored at XDG paths with .env and environment overrides
// ABOUTME: Covers backend selection, retry policy, extraction timeouts and logging
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/harperreed/sfcrm/charm"
	"github.com/harperreed/sfcrm/extract"
	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/store"
)

// Backend names.
const (
	BackendLocal = "local"
	BackendCharm = "charm"
)

// JournalOff disables the merge journal when used as JournalPath.
const JournalOff = "off"

// DefaultUndoWindow is how long the tui offers undo after a delete.
const DefaultUndoWindow = 5 * time.Second

// Config holds every tunable of the service.
type Config struct {
	Backend           string        `json:"backend"`
	DataDir           string        `json:"data_dir,omitempty"`
	CharmHost         string        `json:"charm_host,omitempty"`
	AutoSync          bool          `json:"auto_sync"`
	StorageKey        string        `json:"storage_key"`
	SetRetries        int           `json:"set_retries"`
	RetryBackoff      time.Duration `json:"retry_backoff"`
	ExtractionTimeout time.Duration `json:"extraction_timeout"`
	IndicatorReset    time.Duration `json:"indicator_reset"`
	UndoWindow        time.Duration `json:"undo_window"`
	JournalPath       string        `json:"journal_path,omitempty"`
	LogLevel          string        `json:"log_level"`
}

// Dir returns the XDG data directory for sfcrm.
func Dir() string {
	return filepath.Join(xdg.DataHome, "sfcrm")
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Default returns a config with every field set.
func Default() *Config {
	return &Config{
		Backend:           BackendLocal,
		CharmHost:         charm.DefaultCharmHost,
		AutoSync:          true,
		StorageKey:        models.DefaultStorageKey,
		SetRetries:        store.DefaultRetries,
		RetryBackoff:      store.DefaultBackoff,
		ExtractionTimeout: extract.DefaultTimeout,
		IndicatorReset:    extract.DefaultIndicatorReset,
		UndoWindow:        DefaultUndoWindow,
		LogLevel:          "info",
	}
}

// Load reads the config at path (Path() when empty). A missing file yields
// defaults. Environment overrides are applied last:
// - SFCRM_BACKEND
// - SFCRM_DATA_DIR
// - SFCRM_CHARM_HOST
// - SFCRM_AUTO_SYNC
// - SFCRM_STORAGE_KEY
// - SFCRM_EXTRACTION_TIMEOUT
// - SFCRM_LOG_LEVEL
// - SFCRM_JOURNAL_PATH.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer func() { _ = f.Close() }()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from a dotenv file without overriding
// variables already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SFCRM_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("SFCRM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SFCRM_CHARM_HOST"); v != "" {
		cfg.CharmHost = v
	}
	if v := os.Getenv("SFCRM_AUTO_SYNC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SFCRM_AUTO_SYNC: %w", err)
		}
		cfg.AutoSync = b
	}
	if v := os.Getenv("SFCRM_STORAGE_KEY"); v != "" {
		cfg.StorageKey = v
	}
	if v := os.Getenv("SFCRM_EXTRACTION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SFCRM_EXTRACTION_TIMEOUT: %w", err)
		}
		cfg.ExtractionTimeout = d
	}
	if v := os.Getenv("SFCRM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SFCRM_JOURNAL_PATH"); v != "" {
		cfg.JournalPath = v
	}
	return nil
}

// fill replaces zero values left by a partial config file.
func (c *Config) fill() {
	d := Default()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.CharmHost == "" {
		c.CharmHost = d.CharmHost
	}
	if c.StorageKey == "" {
		c.StorageKey = d.StorageKey
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = d.RetryBackoff
	}
	if c.ExtractionTimeout == 0 {
		c.ExtractionTimeout = d.ExtractionTimeout
	}
	if c.IndicatorReset == 0 {
		c.IndicatorReset = d.IndicatorReset
	}
	if c.UndoWindow == 0 {
		c.UndoWindow = d.UndoWindow
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal, BackendCharm:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendLocal, BackendCharm)
	}
	if c.SetRetries < 0 {
		return fmt.Errorf("set_retries must not be negative")
	}
	if c.RetryBackoff < 0 || c.ExtractionTimeout < 0 || c.IndicatorReset < 0 || c.UndoWindow < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Save writes the config to path (Path() when empty) with owner-only
// permissions.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ResolvedDataDir is DataDir, or Dir() when unset.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return Dir()
}

// LocalStorePath is where the local badger backend keeps its files.
func (c *Config) LocalStorePath() string {
	return filepath.Join(c.ResolvedDataDir(), "store")
}

// ResolvedJournalPath returns the journal database path, or "" when the
// journal is disabled.
func (c *Config) ResolvedJournalPath() string {
	switch strings.ToLower(c.JournalPath) {
	case JournalOff:
		return ""
	case "":
		return filepath.Join(c.ResolvedDataDir(), "journal.db")
	default:
		return c.JournalPath
	}
}

// CharmConfig maps the charm settings onto the backend client config.
func (c *Config) CharmConfig() *charm.Config {
	cfg := charm.DefaultConfig()
	cfg.Host = c.CharmHost
	cfg.AutoSync = c.AutoSync
	return cfg
}

// StoreOptions returns adapter options for this config.
func (c *Config) StoreOptions(logger *log.Logger) store.Options {
	retries := c.SetRetries
	if retries == 0 {
		retries = -1
	}
	return store.Options{Retries: retries, Backoff: c.RetryBackoff, Logger: logger}
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger(w io.Writer) *log.Logger {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "sfcrm",
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
}
