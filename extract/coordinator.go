// ABOUTME: Coordinates on-demand extractions with the results that later arrive
// ABOUTME: One pending waiter per object type, resolved by a merge, a failure, or a timeout
package extract

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
)

// DefaultTimeout bounds how long RequestExtraction waits for a result.
const DefaultTimeout = 10 * time.Second

// Status is the terminal state of an extraction request.
type Status string

const (
	StatusOK      Status = "ok"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Outcome is delivered exactly once per request.
type Outcome struct {
	Status     Status            `json:"status"`
	Updated    *merge.Result     `json:"updated,omitempty"`
	Error      string            `json:"error,omitempty"`
	ObjectType models.ObjectType `json:"objectType,omitempty"`
}

func okOutcome(res merge.Result) Outcome {
	return Outcome{Status: StatusOK, Updated: &res}
}

func errorOutcome(err error) Outcome {
	return Outcome{Status: StatusError, Error: err.Error()}
}

func timeoutOutcome(t models.ObjectType) Outcome {
	return Outcome{Status: StatusTimeout, ObjectType: t}
}

// Merger commits an observed record.
type Merger interface {
	MergeRecord(ctx context.Context, t models.ObjectType, r models.Record) (merge.Result, error)
}

// Options configures a Coordinator.
type Options struct {
	Timeout   time.Duration
	Logger    *log.Logger
	Indicator *Indicator
}

type waiter struct {
	id         string
	objectType models.ObjectType
	result     chan Outcome

	// guarded by Coordinator.mu
	done  bool
	timer *time.Timer
}

// Coordinator owns the per-type pending slots for one service process.
type Coordinator struct {
	merger     Merger
	dispatcher Dispatcher
	timeout    time.Duration
	logger     *log.Logger
	indicator  *Indicator

	mu      sync.Mutex
	pending map[models.ObjectType]*waiter
}

// NewCoordinator wires a merger and a dispatcher together.
func NewCoordinator(m Merger, d Dispatcher, opts Options) *Coordinator {
	c := &Coordinator{
		merger:     m,
		dispatcher: d,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
		indicator:  opts.Indicator,
		pending:    map[models.ObjectType]*waiter{},
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	c.logger = c.logger.With("component", "extract")
	return c
}

// Pending reports whether a waiter currently occupies t's slot.
func (c *Coordinator) Pending(t models.ObjectType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[t] != nil
}

// RequestExtraction asks the active page to extract t and blocks until the
// result is merged, dispatch fails, the timeout fires, or ctx is done.
//
// A second request for the same type takes over the slot. The earlier
// request is then only resolved by its own timeout or its ctx, unless the
// second dispatch fails, in which case the earlier request gets the slot back.
func (c *Coordinator) RequestExtraction(ctx context.Context, t models.ObjectType) Outcome {
	if _, err := t.BucketKey(); err != nil {
		return errorOutcome(err)
	}

	w := &waiter{
		id:         uuid.NewString(),
		objectType: t,
		result:     make(chan Outcome, 1),
	}

	c.mu.Lock()
	prev := c.pending[t]
	if prev != nil {
		c.logger.Warn("replacing pending extraction", "type", t, "previous", prev.id)
	}
	c.pending[t] = w
	c.mu.Unlock()

	c.show(StateExtracting, string(t))
	c.logger.Debug("dispatching extraction", "type", t, "waiter", w.id)

	if err := c.dispatcher.Dispatch(ctx, t); err != nil {
		c.logger.Warn("dispatch failed", "type", t, "err", err)
		c.finish(w, errorOutcome(err))
		c.restore(prev)
	} else {
		c.arm(w)
	}

	select {
	case o := <-w.result:
		return o
	case <-ctx.Done():
		c.finish(w, errorOutcome(ctx.Err()))
		return <-w.result
	}
}

// Observe merges a record reported by a page and resolves the pending
// request for its type, if any.
func (c *Coordinator) Observe(ctx context.Context, t models.ObjectType, r models.Record) (merge.Result, error) {
	res, err := c.merger.MergeRecord(ctx, t, r)
	if err != nil {
		c.logger.Error("failed to merge extraction result", "type", t, "err", err)
	}

	c.mu.Lock()
	w := c.pending[t]
	c.mu.Unlock()

	if w != nil {
		if err != nil {
			c.finish(w, errorOutcome(err))
		} else {
			c.finish(w, okOutcome(res))
		}
	}
	return res, err
}

func (c *Coordinator) arm(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w.done {
		return
	}
	w.timer = time.AfterFunc(c.timeout, func() {
		c.logger.Warn("extraction timed out", "type", w.objectType, "waiter", w.id)
		c.finish(w, timeoutOutcome(w.objectType))
	})
}

// restore hands the slot back to a waiter displaced by a request whose
// dispatch failed, as long as it is still waiting and the slot is free.
func (c *Coordinator) restore(prev *waiter) {
	if prev == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev.done || c.pending[prev.objectType] != nil {
		return
	}
	c.pending[prev.objectType] = prev
	c.logger.Debug("restored pending extraction", "type", prev.objectType, "waiter", prev.id)
}

// finish delivers o to w once. The slot is cleared only if it still holds w.
func (c *Coordinator) finish(w *waiter, o Outcome) {
	c.mu.Lock()
	if w.done {
		c.mu.Unlock()
		return
	}
	w.done = true
	if c.pending[w.objectType] == w {
		delete(c.pending, w.objectType)
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	c.mu.Unlock()

	w.result <- o

	switch o.Status {
	case StatusOK:
		c.show(StateSuccess, string(w.objectType))
	case StatusTimeout:
		c.show(StateTimeout, string(w.objectType))
	default:
		c.show(StateError, o.Error)
	}
}

func (c *Coordinator) show(s State, detail string) {
	if c.indicator != nil {
		c.indicator.Set(s, detail)
	}
}
