// ABOUTME: Config CLI commands
// ABOUTME: Shows the effective configuration or writes a default file
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/harperreed/sfcrm/config"
)

// ConfigCommand handles "config show", "config path" and "config init".
func ConfigCommand(cfg *config.Config, path string, w io.Writer, args []string) error {
	if path == "" {
		path = config.Path()
	}
	if len(args) == 0 {
		args = []string{"show"}
	}

	switch args[0] {
	case "show":
		return writeJSON(w, cfg)
	case "path":
		_, _ = fmt.Fprintln(w, path)
		return nil
	case "init":
		fs := flag.NewFlagSet("config init", flag.ContinueOnError)
		force := fs.Bool("force", false, "Overwrite an existing file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !*force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "✓ Wrote %s\n", path)
		return nil
	default:
		return fmt.Errorf("unknown config command: %s", args[0])
	}
}
