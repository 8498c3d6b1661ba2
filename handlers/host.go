// ABOUTME: Native-messaging host loop: reads framed messages from the browser and writes replies
// ABOUTME: Each message is handled on its own goroutine; RUN_EXTRACTION commands share the output stream
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/sfcrm/extract"
)

// PageCommand is written to the browser to ask one page to extract.
type PageCommand struct {
	extract.Command
	PageID string `json:"pageId"`
}

// Host serves a Router over a framed byte stream.
type Host struct {
	out    io.Writer
	logger *log.Logger

	mu sync.Mutex
}

// NewHost builds a host writing to out. The router is attached with Serve.
func NewHost(out io.Writer, logger *log.Logger) *Host {
	if logger == nil {
		logger = log.Default()
	}
	return &Host{out: out, logger: logger.With("component", "host")}
}

// Sender returns a SenderFactory whose pages receive commands as frames on
// the host's output stream.
func (h *Host) Sender() SenderFactory {
	return func(pageID string) extract.Sender {
		return extract.SenderFunc(func(_ context.Context, cmd extract.Command) error {
			return h.write(PageCommand{Command: cmd, PageID: pageID})
		})
	}
}

// Serve reads frames from in until EOF or ctx is done, then waits for
// in-flight handlers. Pending extraction requests are bounded by their
// timeout.
func (h *Host) Serve(ctx context.Context, router *Router, in io.Reader) error {
	var g errgroup.Group
	var readErr error
	for {
		body, err := ReadFrame(in)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			h.logger.Warn("dropping undecodable message", "err", err)
			if werr := h.write(errorResponse(fmt.Errorf("invalid message: %w", err))); werr != nil {
				readErr = werr
				break
			}
			continue
		}

		g.Go(func() error {
			return h.write(router.Handle(ctx, msg))
		})

		if ctx.Err() != nil {
			break
		}
	}

	if err := g.Wait(); err != nil && readErr == nil {
		readErr = err
	}
	return readErr
}

func (h *Host) write(v interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return WriteFrame(h.out, v)
}
