// ABOUTME: Charm KV client wrapper with automatic sync support
// ABOUTME: Remote-synced backend for the record store

package charm

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
	"github.com/dgraph-io/badger/v3"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = badger.ErrKeyNotFound

// Client wraps charm KV with config and sync helpers.
type Client struct {
	kv     *kv.KV
	config *Config
	mu     sync.RWMutex
	local  *LocalKV // used for testing without server dependency
}

// NewClient opens the charm KV database for cfg.Name against cfg.Host.
func NewClient(cfg *Config) (*Client, error) {
	cfg = cfg.withDefaults()

	// Set charm host before opening KV
	if err := os.Setenv("CHARM_HOST", cfg.Host); err != nil {
		return nil, fmt.Errorf("failed to set charm host: %w", err)
	}

	db, err := kv.OpenWithDefaults(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to open charm kv: %w", err)
	}

	c := &Client{
		kv:     db,
		config: cfg,
	}

	// Sync on startup to pull remote changes
	if cfg.AutoSync {
		_ = db.Sync()
	}

	return c, nil
}

// Close closes the KV store.
func (c *Client) Close() error {
	if c.local != nil {
		return c.local.Close()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Note: charm/kv doesn't expose Close() directly
	// The underlying BadgerDB will be cleaned up on process exit
	return nil
}

// Config returns the client's config.
func (c *Client) Config() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// ID returns the charm user ID for this device.
func (c *Client) ID() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("failed to create charm client: %w", err)
	}
	return cc.ID()
}

// IsConnected checks if the client can connect to charm cloud.
func (c *Client) IsConnected() bool {
	if c.local != nil {
		return true
	}
	_, err := c.ID()
	return err == nil
}

// Sync performs a manual sync with the charm server.
func (c *Client) Sync() error {
	if c.local != nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Sync()
}

// Get retrieves a value by key. Missing keys return ErrNotFound.
func (c *Client) Get(key []byte) ([]byte, error) {
	if c.local != nil {
		return c.local.Get(key)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kv.Get(key)
}

// Set stores a value and syncs if enabled.
func (c *Client) Set(key, value []byte) error {
	if c.local != nil {
		return c.local.Set(key, value)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.kv.Set(key, value); err != nil {
		return err
	}

	// Sync while still holding lock to avoid race condition
	if c.config.AutoSync {
		_ = c.kv.Sync()
	}
	return nil
}

// Keys returns all keys (for debugging/admin).
func (c *Client) Keys() ([][]byte, error) {
	if c.local != nil {
		return c.local.Keys()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.kv.Keys()
}

// Reset wipes all data from the KV store (use with caution!)
func (c *Client) Reset() error {
	if c.local != nil {
		return c.local.Reset()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kv.Reset()
}

// IsNotFound reports whether err means the key was never written.
func IsNotFound(err error) bool {
	return errors.Is(err, badger.ErrKeyNotFound)
}
