// ABOUTME: Merge engine that commits records into the persisted storage root
// ABOUTME: Serializes read-modify-write per engine and reports each decision to an optional journal
package merge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/sfcrm/models"
)

// KV is the slice of the store adapter the engine needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Event describes one completed merge for auditing.
type Event struct {
	ObjectType      models.ObjectType
	ID              string
	Decision        Decision
	IncomingUpdated string
	StoredUpdated   string
	At              time.Time
}

// Journal receives merge events. Failures are logged by the engine and never
// fail the merge.
type Journal interface {
	Record(ctx context.Context, ev Event) error
}

// Result is what a merge produced.
type Result struct {
	ObjectType models.ObjectType `json:"objectType"`
	ID         string            `json:"id"`
	Record     models.Record     `json:"record"`
	Decision   Decision          `json:"decision"`
}

// Options configures an Engine.
type Options struct {
	StorageKey string
	Logger     *log.Logger
	Now        func() time.Time
	Journal    Journal
}

// Engine merges incoming observations into the storage root held in a KV.
//
// MergeRecord holds a mutex across its read-modify-write, so merges through
// one Engine never lose each other's updates. Separate Engines over the same
// backend are not coordinated.
type Engine struct {
	kv         KV
	storageKey string
	logger     *log.Logger
	now        func() time.Time
	journal    Journal

	mu sync.Mutex
}

// NewEngine creates an engine over kv.
func NewEngine(kv KV, opts Options) *Engine {
	e := &Engine{
		kv:         kv,
		storageKey: opts.StorageKey,
		logger:     opts.Logger,
		now:        opts.Now,
		journal:    opts.Journal,
	}
	if e.storageKey == "" {
		e.storageKey = models.DefaultStorageKey
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	e.logger = e.logger.With("component", "merge")
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// StorageKey returns the key the root is persisted under.
func (e *Engine) StorageKey() string {
	return e.storageKey
}

// LoadRoot reads and decodes the persisted root. A missing root is returned
// empty with every bucket present.
func (e *Engine) LoadRoot(ctx context.Context) (models.Root, error) {
	data, err := e.kv.Get(ctx, e.storageKey)
	if err != nil {
		return nil, err
	}
	root, err := models.DecodeRoot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode storage root: %w", err)
	}
	return root, nil
}

// MergeRecord reconciles incoming with whatever is stored for the same
// logical entity and persists the result.
//
// When the write fails the returned error matches models.ErrPersist and the
// Result still carries the record that would have been stored.
func (e *Engine) MergeRecord(ctx context.Context, t models.ObjectType, incoming models.Record) (Result, error) {
	if _, err := t.BucketKey(); err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	root, err := e.LoadRoot(ctx)
	if err != nil {
		return Result{}, err
	}
	bucket, err := root.EnsureBucket(t)
	if err != nil {
		return Result{}, err
	}

	now := e.now().UTC()
	id := ComputeKey(t, incoming)
	existing, has := bucket.ByID[id]
	merged, decision := Resolve(existing, has, incoming, now)

	bucket.ByID[id] = merged
	bucket.LastSync = &now

	res := Result{ObjectType: t, ID: id, Record: merged, Decision: decision}

	data, err := root.Encode()
	if err != nil {
		return res, fmt.Errorf("%w: failed to encode root: %w", models.ErrPersist, err)
	}
	if err := e.kv.Set(ctx, e.storageKey, data); err != nil {
		e.logger.Error("persist failed", "type", t, "id", id, "err", err)
		return res, fmt.Errorf("%w: %w", models.ErrPersist, err)
	}

	e.logger.Debug("merged", "type", t, "id", id, "decision", decision)
	e.record(ctx, Event{
		ObjectType:      t,
		ID:              id,
		Decision:        decision,
		IncomingUpdated: incoming.LastUpdated(),
		StoredUpdated:   merged.LastUpdated(),
		At:              now,
	})
	return res, nil
}

func (e *Engine) record(ctx context.Context, ev Event) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ctx, ev); err != nil {
		e.logger.Warn("journal write failed", "id", ev.ID, "err", err)
	}
}
