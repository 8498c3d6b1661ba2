// ABOUTME: Serve command: runs the native-messaging host on stdin/stdout
// ABOUTME: Pages register over the same stream and receive RUN_EXTRACTION commands
package cli

import (
	"context"
	"flag"
	"io"

	"github.com/harperreed/sfcrm/extract"
	"github.com/harperreed/sfcrm/handlers"
)

// ServeCommand serves framed messages from in until EOF. Logs must go to
// stderr; out carries only frames.
func ServeCommand(ctx context.Context, app *App, in io.Reader, out io.Writer, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	timeout := fs.Duration("timeout", app.Config.ExtractionTimeout, "Extraction request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := app.Logger.With("component", "serve")

	indicator := extract.NewIndicator(app.Config.IndicatorReset)
	defer indicator.Stop()
	stopStatus := indicator.OnChange(func(s extract.State, detail string) {
		logger.Info("extraction status", "state", s.Label(), "detail", detail)
	})
	defer stopStatus()

	pages := extract.NewPages()
	coordinator := extract.NewCoordinator(app.Engine, pages, extract.Options{
		Timeout:   *timeout,
		Logger:    app.Logger,
		Indicator: indicator,
	})

	host := handlers.NewHost(out, app.Logger)
	router := handlers.NewRouter(app.Engine, coordinator, pages, host.Sender(), app.Logger)

	logger.Info("native messaging host started", "storageKey", app.Engine.StorageKey())
	err := host.Serve(ctx, router, in)
	logger.Info("native messaging host stopped")
	return err
}
