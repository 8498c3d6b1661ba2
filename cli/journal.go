// ABOUTME: Journal command: shows recent merge decisions or the history of one key
// ABOUTME: Reads the SQLite merge log
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/harperreed/sfcrm/config"
	"github.com/harperreed/sfcrm/db"
	"github.com/harperreed/sfcrm/models"
)

// JournalCommand prints merge log entries.
func JournalCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	objectType := fs.String("type", "", "Restrict to one object type")
	id := fs.String("id", "", "Show the full history of one storage key")
	limit := fs.Int("limit", 50, "Maximum entries")
	format := fs.String("format", formatAuto, "Output format: auto, table or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app.Journal == nil {
		return fmt.Errorf("merge journal is disabled (journal_path is %q)", config.JournalOff)
	}
	out, err := resolveFormat(*format, w)
	if err != nil {
		return err
	}

	var entries []db.Entry
	if *id != "" {
		entries, err = app.Journal.History(ctx, *id)
	} else {
		var t models.ObjectType
		if *objectType != "" {
			if t, err = models.ParseObjectType(*objectType); err != nil {
				return fmt.Errorf("--type: %w", err)
			}
		}
		entries, err = app.Journal.Recent(ctx, t, *limit)
	}
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}

	if out == formatJSON {
		if entries == nil {
			entries = []db.Entry{}
		}
		return writeJSON(w, entries)
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No merges recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "MERGED\tTYPE\tID\tDECISION\tINCOMING\tSTORED")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.MergedAt.Local().Format(time.DateTime),
			e.ObjectType,
			e.StorageKey,
			e.Decision,
			orDash(e.IncomingUpdated),
			orDash(e.StoredUpdated),
		)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
