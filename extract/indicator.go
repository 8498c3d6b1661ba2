// ABOUTME: Extraction status indicator with automatic return to idle
// ABOUTME: Terminal states revert after a fixed delay; listeners see every change
package extract

import (
	"sync"
	"time"
)

// State is what the indicator currently shows.
type State string

const (
	StateIdle       State = "idle"
	StateExtracting State = "extracting"
	StateSuccess    State = "success"
	StateError      State = "error"
	StateTimeout    State = "timeout"
)

// DefaultIndicatorReset is how long a terminal state is shown before idle.
const DefaultIndicatorReset = 3 * time.Second

// Label returns the short human text for a state.
func (s State) Label() string {
	switch s {
	case StateExtracting:
		return "Extracting…"
	case StateSuccess:
		return "Success ✓"
	case StateError:
		return "Error ⚠"
	case StateTimeout:
		return "Timed out"
	default:
		return "Idle"
	}
}

func (s State) terminal() bool {
	return s == StateSuccess || s == StateError || s == StateTimeout
}

// Indicator tracks extraction status for display.
type Indicator struct {
	resetAfter time.Duration

	mu        sync.Mutex
	state     State
	detail    string
	gen       uint64
	timer     *time.Timer
	listeners map[int]func(State, string)
	nextID    int
}

// NewIndicator starts idle. resetAfter <= 0 uses DefaultIndicatorReset.
func NewIndicator(resetAfter time.Duration) *Indicator {
	if resetAfter <= 0 {
		resetAfter = DefaultIndicatorReset
	}
	return &Indicator{
		resetAfter: resetAfter,
		state:      StateIdle,
		listeners:  map[int]func(State, string){},
	}
}

// State returns the current state and its detail text.
func (i *Indicator) State() (State, string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state, i.detail
}

// Set moves to state. Any pending revert is cancelled, and terminal states
// schedule a new one.
func (i *Indicator) Set(state State, detail string) {
	i.mu.Lock()
	i.gen++
	gen := i.gen
	i.state, i.detail = state, detail
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	if state.terminal() {
		i.timer = time.AfterFunc(i.resetAfter, func() { i.revert(gen) })
	}
	fns := i.snapshot()
	i.mu.Unlock()

	for _, fn := range fns {
		fn(state, detail)
	}
}

// revert returns to idle unless the state changed since gen.
func (i *Indicator) revert(gen uint64) {
	i.mu.Lock()
	if i.gen != gen {
		i.mu.Unlock()
		return
	}
	i.gen++
	i.state, i.detail = StateIdle, ""
	i.timer = nil
	fns := i.snapshot()
	i.mu.Unlock()

	for _, fn := range fns {
		fn(StateIdle, "")
	}
}

// OnChange registers fn for state changes. It returns an unregister func.
func (i *Indicator) OnChange(fn func(State, string)) func() {
	i.mu.Lock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = fn
	i.mu.Unlock()
	return func() {
		i.mu.Lock()
		delete(i.listeners, id)
		i.mu.Unlock()
	}
}

// Stop cancels any pending revert.
func (i *Indicator) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.gen++
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
}

func (i *Indicator) snapshot() []func(State, string) {
	fns := make([]func(State, string), 0, len(i.listeners))
	for _, fn := range i.listeners {
		fns = append(fns, fn)
	}
	return fns
}
