// ABOUTME: Registry of page contexts that can run an extraction on request
// ABOUTME: Dispatch targets the most recently activated page still registered
package extract

import (
	"context"
	"fmt"
	"sync"

	"github.com/harperreed/sfcrm/models"
)

// CommandRunExtraction asks a page to scrape and report back.
const CommandRunExtraction = "RUN_EXTRACTION"

// Command is sent to a page context.
type Command struct {
	Type       string            `json:"type"`
	ObjectType models.ObjectType `json:"objectType"`
}

// Sender delivers commands to one page context.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, cmd Command) error

func (f SenderFunc) Send(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

// Dispatcher asks some page context to run an extraction.
type Dispatcher interface {
	Dispatch(ctx context.Context, t models.ObjectType) error
}

// ErrNoActivePage is returned when nothing can receive a dispatch. It
// matches models.ErrDispatch.
var ErrNoActivePage error = &dispatchError{msg: "No active tab found"}

type dispatchError struct{ msg string }

func (e *dispatchError) Error() string        { return e.msg }
func (e *dispatchError) Is(target error) bool { return target == models.ErrDispatch }

// Pages tracks registered page contexts.
type Pages struct {
	mu    sync.Mutex
	pages map[string]Sender
	order []string
}

// NewPages returns an empty registry.
func NewPages() *Pages {
	return &Pages{pages: map[string]Sender{}}
}

// Activate registers (or re-registers) a page and makes it the active one.
func (p *Pages) Activate(id string, s Sender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remove(id)
	p.pages[id] = s
	p.order = append(p.order, id)
}

// Deactivate forgets a page. The previously active page, if any, becomes
// active again.
func (p *Pages) Deactivate(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remove(id)
}

// Active returns the id of the active page.
func (p *Pages) Active() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.order) == 0 {
		return "", false
	}
	return p.order[len(p.order)-1], true
}

// Len returns the number of registered pages.
func (p *Pages) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}

// Dispatch sends RUN_EXTRACTION to the active page.
func (p *Pages) Dispatch(ctx context.Context, t models.ObjectType) error {
	p.mu.Lock()
	var (
		id string
		s  Sender
	)
	if n := len(p.order); n > 0 {
		id = p.order[n-1]
		s = p.pages[id]
	}
	p.mu.Unlock()

	if s == nil {
		return ErrNoActivePage
	}
	if err := s.Send(ctx, Command{Type: CommandRunExtraction, ObjectType: t}); err != nil {
		return fmt.Errorf("%w: page %s: %w", models.ErrDispatch, id, err)
	}
	return nil
}

func (p *Pages) remove(id string) {
	delete(p.pages, id)
	for i, existing := range p.order {
		if existing == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}
