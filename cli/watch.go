// ABOUTME: Watch command: prints a bucket summary whenever the stored root changes
// ABOUTME: Runs until the context is cancelled
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
)

// WatchCommand subscribes to the store and logs every change. With a
// charm backend, --poll pulls remote changes on an interval.
func WatchCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	poll := fs.Duration("poll", 0, "Pull remote changes on this interval (charm backend)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	root, err := app.Engine.LoadRoot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	_, _ = fmt.Fprintf(w, "%s  %s\n", time.Now().Format(time.TimeOnly), query.FormatSummary(query.Summary(root)))

	changes := make(chan models.Root, 1)
	unsubscribe := app.Query.Subscribe(func(root models.Root) {
		select {
		case changes <- root:
		default:
			// drop the stale pending root, keep the newest
			select {
			case <-changes:
			default:
			}
			changes <- root
		}
	})
	defer unsubscribe()

	var tick <-chan time.Time
	if *poll > 0 {
		ticker := time.NewTicker(*poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case root := <-changes:
			_, _ = fmt.Fprintf(w, "%s  %s\n", time.Now().Format(time.TimeOnly), query.FormatSummary(query.Summary(root)))
		case <-tick:
			if err := app.Store.Refresh(ctx, app.Engine.StorageKey()); err != nil {
				app.Logger.Warn("refresh failed", "err", err)
			}
		}
	}
}
