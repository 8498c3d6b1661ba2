// ABOUTME: Key-value store adapter with bounded retry and change notifications
// ABOUTME: Wraps a charm/badger backend; every value is written whole under its key

package store

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/sfcrm/charm"
	"github.com/harperreed/sfcrm/models"
)

const (
	// DefaultRetries is how many times a failed Set is retried.
	DefaultRetries = 2

	// DefaultBackoff is multiplied by the attempt number between retries.
	DefaultBackoff = 200 * time.Millisecond
)

// Backend is the external key-value primitive. Each Set is assumed atomic
// for the whole value at that key.
type Backend interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// Syncer is implemented by backends that can pull remote changes.
type Syncer interface {
	Sync() error
}

// Error is a backend failure, possibly after retries. It matches
// models.ErrStore.
type Error struct {
	Op       string
	Key      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("store %s %q failed after %d attempts: %v", e.Op, e.Key, e.Attempts, e.Err)
	}
	return fmt.Sprintf("store %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == models.ErrStore }

// Options tunes an Adapter. Zero values take defaults.
type Options struct {
	Retries int
	Backoff time.Duration
	Logger  *log.Logger

	// IsNotFound classifies backend Get errors that mean "absent".
	IsNotFound func(error) bool
}

// Adapter provides get/set with retry on top of a Backend and fans out
// change notifications to watchers.
type Adapter struct {
	backend    Backend
	retries    int
	backoff    time.Duration
	logger     *log.Logger
	isNotFound func(error) bool

	mu       sync.Mutex
	last     map[string][]byte
	watchers map[int]*watcher
	nextID   int
}

// New wraps backend. Negative Retries disables retrying.
func New(backend Backend, opts Options) *Adapter {
	a := &Adapter{
		backend:    backend,
		retries:    opts.Retries,
		backoff:    opts.Backoff,
		logger:     opts.Logger,
		isNotFound: opts.IsNotFound,
		last:       map[string][]byte{},
		watchers:   map[int]*watcher{},
	}
	if a.retries == 0 {
		a.retries = DefaultRetries
	}
	if a.retries < 0 {
		a.retries = 0
	}
	if a.backoff == 0 {
		a.backoff = DefaultBackoff
	}
	if a.logger == nil {
		a.logger = log.Default()
	}
	a.logger = a.logger.With("component", "store")
	if a.isNotFound == nil {
		a.isNotFound = charm.IsNotFound
	}
	return a
}

// Get returns the value at key, or nil when the key is absent.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "get", Key: key, Attempts: 1, Err: err}
	}
	value, err := a.backend.Get([]byte(key))
	if err != nil {
		if a.isNotFound(err) {
			return nil, nil
		}
		a.logger.Error("get failed", "key", key, "err", err)
		return nil, &Error{Op: "get", Key: key, Attempts: 1, Err: err}
	}
	return value, nil
}

// Set writes value at key, retrying transient failures with linearly
// increasing backoff. It gives up early if ctx is done.
func (a *Adapter) Set(ctx context.Context, key string, value []byte) error {
	attempts := 0
	for {
		attempts++
		err := a.backend.Set([]byte(key), value)
		if err == nil {
			a.publish(key, value)
			return nil
		}

		a.logger.Warn("set failed", "key", key, "attempt", attempts, "err", err)
		if attempts > a.retries {
			return &Error{Op: "set", Key: key, Attempts: attempts, Err: err}
		}

		timer := time.NewTimer(a.backoff * time.Duration(attempts))
		select {
		case <-ctx.Done():
			timer.Stop()
			return &Error{Op: "set", Key: key, Attempts: attempts, Err: fmt.Errorf("%w (last error: %v)", ctx.Err(), err)}
		case <-timer.C:
		}
	}
}

// Refresh pulls remote changes when the backend can sync, then notifies
// watchers if the value at key changed.
func (a *Adapter) Refresh(ctx context.Context, key string) error {
	if s, ok := a.backend.(Syncer); ok {
		if err := s.Sync(); err != nil {
			return &Error{Op: "sync", Key: key, Attempts: 1, Err: err}
		}
	}
	value, err := a.Get(ctx, key)
	if err != nil {
		return err
	}
	if value != nil {
		a.publish(key, value)
	}
	return nil
}

// Watch registers fn to be called with the new value whenever the value at
// any key changes through this adapter. Rapid successive writes to the same
// key may be coalesced into one call carrying that key's newest value; every
// changed key is still delivered. The returned cancel function is idempotent.
func (a *Adapter) Watch(fn func(key string, value []byte)) (cancel func()) {
	w := &watcher{
		fn:      fn,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		pending: map[string][]byte{},
	}

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.watchers[id] = w
	a.mu.Unlock()

	w.wg.Add(1)
	go w.run()

	return func() {
		a.mu.Lock()
		delete(a.watchers, id)
		a.mu.Unlock()
		w.stop()
	}
}

// Close stops every watcher.
func (a *Adapter) Close() {
	a.mu.Lock()
	ws := a.watchers
	a.watchers = map[int]*watcher{}
	a.mu.Unlock()
	for _, w := range ws {
		w.stop()
	}
	for _, w := range ws {
		w.wg.Wait()
	}
}

func (a *Adapter) publish(key string, value []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if prev, ok := a.last[key]; ok && bytes.Equal(prev, value) {
		return
	}
	v := append([]byte(nil), value...)
	a.last[key] = v
	for _, w := range a.watchers {
		w.offer(key, v)
	}
}

type watcher struct {
	fn     func(key string, value []byte)
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string][]byte
	order   []string
}

// offer records value as the newest undelivered change for key. Changes to
// different keys never replace each other. Never blocks.
func (w *watcher) offer(key string, value []byte) {
	w.mu.Lock()
	if _, ok := w.pending[key]; !ok {
		w.order = append(w.order, key)
	}
	w.pending[key] = value
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// take removes and returns every pending change in first-offered order.
func (w *watcher) take() ([]string, map[string][]byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	keys, values := w.order, w.pending
	w.order = nil
	w.pending = map[string][]byte{}
	return keys, values
}

func (w *watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-w.signal:
		}
		keys, values := w.take()
		for _, key := range keys {
			select {
			case <-w.done:
				return
			default:
			}
			w.fn(key, values[key])
		}
	}
}

// stop does not wait for run to return, so fn may cancel its own watch.
func (w *watcher) stop() {
	w.once.Do(func() { close(w.done) })
}
