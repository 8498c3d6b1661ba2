// ABOUTME: Sync CLI commands for the charm backend
// ABOUTME: Routes sync now, status and wipe to the charm client
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/harperreed/sfcrm/charm"
	"github.com/harperreed/sfcrm/query"
)

// SyncCommand dispatches a sync subcommand. After a pull the store adapter
// is refreshed so watchers see remote changes.
func SyncCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: sfcrm sync <now|status|wipe>")
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "now":
		if err := charm.SyncNowCommand(app.Client, w, rest); err != nil {
			return err
		}
		return app.Store.Refresh(ctx, app.Engine.StorageKey())
	case "status":
		if err := charm.SyncStatusCommand(app.Client, w, rest); err != nil {
			return err
		}
		root, err := app.Engine.LoadRoot(ctx)
		if err != nil {
			return fmt.Errorf("failed to load records: %w", err)
		}
		_, _ = fmt.Fprintf(w, "Backend:   %s\n", app.Config.Backend)
		_, _ = fmt.Fprintf(w, "Records:   %s\n", query.FormatSummary(query.Summary(root)))
		return nil
	case "wipe":
		return charm.SyncWipeCommand(app.Client, w, rest)
	default:
		return fmt.Errorf("unknown sync command: %s", sub)
	}
}
