// ABOUTME: Configuration for the Charm KV backend connection
// ABOUTME: Server host, auto-sync preference, and the local database name

package charm

import (
	"time"

	"github.com/charmbracelet/charm/kv"
)

const (
	// DefaultCharmHost is the self-hosted 2389 research server.
	DefaultCharmHost = "charm.2389.dev"

	// AppName is the application name for the Charm KV database.
	AppName = "sfcrm"
)

// Config holds charm connection settings.
type Config struct {
	// Host is the charm server hostname (default: charm.2389.dev)
	Host string `json:"host,omitempty"`

	// Name is the KV database name (default: sfcrm)
	Name string `json:"name,omitempty"`

	// AutoSync pushes to the server after every write
	AutoSync bool `json:"auto_sync"`

	// StaleThreshold is the duration before data is considered stale and needs a sync
	StaleThreshold time.Duration `json:"stale_threshold,omitempty"`
}

// DefaultConfig returns a new config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:           DefaultCharmHost,
		Name:           AppName,
		AutoSync:       true,
		StaleThreshold: kv.DefaultStaleThreshold,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.Host == "" {
		out.Host = d.Host
	}
	if out.Name == "" {
		out.Name = d.Name
	}
	if out.StaleThreshold == 0 {
		out.StaleThreshold = d.StaleThreshold
	}
	return &out
}
