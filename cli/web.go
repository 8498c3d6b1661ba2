// ABOUTME: Web command: serves the read-only dashboard
// ABOUTME: Runs until the context is cancelled
package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/harperreed/sfcrm/web"
)

// WebCommand starts the dashboard on --addr.
func WebCommand(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("web", flag.ContinueOnError)
	addr := fs.String("addr", "localhost:8080", "Listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	server, err := web.NewServer(app.Query, app.Engine, app.Journal, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to start dashboard: %w", err)
	}
	return server.Start(ctx, *addr)
}
