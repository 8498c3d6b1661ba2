// ABOUTME: Read side of the record store: listing, lookup, soft delete, undo and subscriptions
// ABOUTME: Every write goes back through the merge engine so freshness rules still apply
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
)

// Entry is one stored record and its storage key.
type Entry struct {
	ID     string        `json:"id"`
	Record models.Record `json:"record"`
}

// Watcher is implemented by the store adapter.
type Watcher interface {
	Watch(fn func(key string, value []byte)) (cancel func())
}

// Options configures a Service.
type Options struct {
	Logger *log.Logger
	Now    func() time.Time
}

// Service answers queries over the persisted root.
type Service struct {
	engine  *merge.Engine
	watcher Watcher
	logger  *log.Logger
	now     func() time.Time
}

// NewService builds a query service. watcher may be nil when subscriptions
// are not needed.
func NewService(engine *merge.Engine, watcher Watcher, opts Options) *Service {
	s := &Service{
		engine:  engine,
		watcher: watcher,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	s.logger = s.logger.With("component", "query")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ListRecords returns every record of type t, soft-deleted ones included,
// ordered by storage key.
func (s *Service) ListRecords(ctx context.Context, t models.ObjectType) ([]Entry, error) {
	root, err := s.engine.LoadRoot(ctx)
	if err != nil {
		return nil, err
	}
	return Entries(root, t)
}

// Entries extracts the sorted entries of type t from a decoded root.
func Entries(root models.Root, t models.ObjectType) ([]Entry, error) {
	b, err := root.Bucket(t)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(b.ByID))
	for id := range b.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, Entry{ID: id, Record: b.ByID[id]})
	}
	return entries, nil
}

// Active drops soft-deleted entries.
func Active(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !e.Record.Deleted() {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the stored record at key.
func (s *Service) Get(ctx context.Context, t models.ObjectType, key string) (models.Record, error) {
	root, err := s.engine.LoadRoot(ctx)
	if err != nil {
		return nil, err
	}
	b, err := root.Bucket(t)
	if err != nil {
		return nil, err
	}
	r, ok := b.ByID[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", models.ErrNotFound, t, key)
	}
	return r, nil
}

// SoftDelete marks the record at key deleted. The record stays in storage.
func (s *Service) SoftDelete(ctx context.Context, t models.ObjectType, key string) (merge.Result, error) {
	existing, err := s.Get(ctx, t, key)
	if err != nil {
		return merge.Result{}, err
	}

	stamp := models.String(models.Timestamp(s.after(existing)))
	update := existing.Clone()
	update[models.FieldDeleted] = models.Bool(true)
	update[models.FieldDeletedAt] = stamp
	update[models.FieldLastUpdated] = stamp

	if got := merge.ComputeKey(t, update); got != key {
		return merge.Result{}, fmt.Errorf("record stored at %q now resolves to %q", key, got)
	}

	s.logger.Info("soft delete", "type", t, "id", key)
	return s.commit(ctx, t, update)
}

// UndoDelete restores a record captured before SoftDelete, clearing the
// deletion fields and refreshing lastUpdated.
func (s *Service) UndoDelete(ctx context.Context, t models.ObjectType, record models.Record) (merge.Result, error) {
	update := record.Clone()
	update[models.FieldDeleted] = models.Bool(false)
	update[models.FieldDeletedAt] = models.Null()

	key := merge.ComputeKey(t, update)
	stored, err := s.Get(ctx, t, key)
	switch {
	case errors.Is(err, models.ErrNotFound):
		stored = record
	case err != nil:
		return merge.Result{}, err
	}
	update[models.FieldLastUpdated] = models.String(models.Timestamp(s.after(stored, record)))

	s.logger.Info("undo delete", "type", t, "id", key)
	return s.commit(ctx, t, update)
}

// after returns now, or just past the newest lastUpdated among records when
// one of them is stamped later than the local clock. Deletes and restores
// must always win the merge.
func (s *Service) after(records ...models.Record) time.Time {
	stamp := s.now().UTC()
	for _, r := range records {
		if t, ok := models.ParseTime(r.LastUpdated()); ok && !stamp.After(t) {
			stamp = t.Add(time.Nanosecond)
		}
	}
	return stamp
}

// commit merges a lifecycle update and fails when the merge kept the
// stored record instead.
func (s *Service) commit(ctx context.Context, t models.ObjectType, update models.Record) (merge.Result, error) {
	res, err := s.engine.MergeRecord(ctx, t, update)
	if err != nil {
		return res, err
	}
	if !res.Decision.Changed() {
		return res, fmt.Errorf("update to %s %q was not applied (%s)", t, res.ID, res.Decision)
	}
	return res, nil
}

// Subscribe calls fn with the decoded root whenever the persisted root
// changes. Rapid changes may be coalesced. fn runs on its own goroutine.
func (s *Service) Subscribe(fn func(models.Root)) (unsubscribe func()) {
	if s.watcher == nil {
		return func() {}
	}
	key := s.engine.StorageKey()
	return s.watcher.Watch(func(changed string, value []byte) {
		if changed != key {
			return
		}
		root, err := models.DecodeRoot(value)
		if err != nil {
			s.logger.Warn("ignoring undecodable root", "err", err)
			return
		}
		fn(root)
	})
}
