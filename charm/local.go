// ABOUTME: Local BadgerDB key-value backend with the same surface as charm/kv
// ABOUTME: Used for offline mode and for isolated tests

package charm

import (
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

// LocalKV wraps BadgerDB to provide the same interface as charm/kv.KV
// without requiring server connectivity.
type LocalKV struct {
	db *badger.DB
	mu sync.RWMutex
}

// OpenLocal opens (or creates) a BadgerDB at dir. An empty dir opens an
// in-memory database.
func OpenLocal(dir string) (*LocalKV, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &LocalKV{db: db}, nil
}

func (t *LocalKV) Get(key []byte) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var result []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	return result, err
}

func (t *LocalKV) Set(key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (t *LocalKV) Keys() ([][]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var keys [][]byte
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	return keys, err
}

// Sync is a no-op: there is no remote to sync with.
func (t *LocalKV) Sync() error {
	return nil
}

func (t *LocalKV) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.db.DropAll()
}

func (t *LocalKV) Close() error {
	return t.db.Close()
}

// NewLocalClient returns a Client backed by a LocalKV, for offline use.
func NewLocalClient(dir string) (*Client, error) {
	local, err := OpenLocal(dir)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	cfg.Host = "localhost"
	cfg.AutoSync = false
	return &Client{config: cfg, local: local}, nil
}
