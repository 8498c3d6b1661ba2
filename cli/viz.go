// ABOUTME: Visualization CLI commands
// ABOUTME: Terminal dashboard and the account graph
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harperreed/sfcrm/viz"
)

// VizDashboardCommand prints pipeline and freshness stats.
func VizDashboardCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("viz dashboard", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	root, err := app.Engine.LoadRoot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	stats, err := viz.GenerateDashboardStats(root, time.Now())
	if err != nil {
		return fmt.Errorf("failed to generate dashboard stats: %w", err)
	}

	_, err = fmt.Fprint(w, viz.RenderDashboard(stats))
	return err
}

// VizGraphCommand renders accounts with their opportunities and contacts.
// An optional positional argument restricts it to one account.
func VizGraphCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("viz graph", flag.ContinueOnError)
	output := fs.String("output", "", "Output file (default: stdout)")
	format := fs.String("format", "dot", "dot or svg")
	all := fs.Bool("all", false, "Include soft-deleted records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f, err := viz.ParseFormat(*format)
	if err != nil {
		return err
	}
	root, err := app.Engine.LoadRoot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}

	generator := viz.NewGraphGenerator(root, *all)
	out, err := generator.GenerateAccountGraph(ctx, fs.Arg(0), f)
	if err != nil {
		return err
	}

	if *output != "" {
		return os.WriteFile(*output, []byte(out), 0644)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// VizCommand routes "viz dashboard" and "viz graph".
func VizCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	if len(args) == 0 {
		return VizDashboardCommand(ctx, app, w, nil)
	}
	switch args[0] {
	case "dashboard":
		return VizDashboardCommand(ctx, app, w, args[1:])
	case "graph":
		return VizGraphCommand(ctx, app, w, args[1:])
	default:
		return fmt.Errorf("unknown viz command %q (want dashboard or graph)", args[0])
	}
}
