// ABOUTME: Record CLI commands
// ABOUTME: merge, list, delete and undo against the configured store
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
)

// readRecordArg decodes a record from --json, --file or stdin, in that order.
func readRecordArg(in io.Reader, inline, file string) (models.Record, error) {
	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		data = b
	default:
		b, err := io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		data = b
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("no record given (use --json, --file or stdin)")
	}
	return models.ParseRecord(data)
}

func printResult(w io.Writer, res merge.Result) {
	_, _ = fmt.Fprintf(w, "✓ %s %s (%s)\n", res.ObjectType, res.ID, res.Decision)
	if name := res.Record.Name(); name != "" {
		_, _ = fmt.Fprintf(w, "  Name: %s\n", name)
	}
	if res.Record.Deleted() {
		_, _ = fmt.Fprintln(w, "  Deleted: yes")
	}
}

// MergeCommand merges one record into the store.
func MergeCommand(ctx context.Context, app *App, in io.Reader, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	objectType := fs.String("type", "", "Object type (required)")
	inline := fs.String("json", "", "Record as a JSON object")
	file := fs.String("file", "", "Read the record from a JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := models.ParseObjectType(*objectType)
	if err != nil {
		return fmt.Errorf("--type: %w", err)
	}
	record, err := readRecordArg(in, *inline, *file)
	if err != nil {
		return err
	}

	res, err := app.Engine.MergeRecord(ctx, t, record)
	if err != nil {
		return fmt.Errorf("failed to merge record: %w", err)
	}
	printResult(w, res)
	return nil
}

// ListCommand prints the records of one type.
func ListCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	objectType := fs.String("type", "opportunity", "Object type")
	all := fs.Bool("all", false, "Include soft-deleted records")
	limit := fs.Int("limit", 0, "Maximum results (0 for all)")
	format := fs.String("format", formatAuto, "Output format: auto, table or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := models.ParseObjectType(*objectType)
	if err != nil {
		return fmt.Errorf("--type: %w", err)
	}
	out, err := resolveFormat(*format, w)
	if err != nil {
		return err
	}

	entries, err := app.Query.ListRecords(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	if !*all {
		entries = query.Active(entries)
	}
	if *limit > 0 && len(entries) > *limit {
		entries = entries[:*limit]
	}

	if out == formatJSON {
		if entries == nil {
			entries = []query.Entry{}
		}
		return writeJSON(w, entries)
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintf(w, "No %s records found\n", t)
		return nil
	}

	cols := columnsFor(t)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := append([]string{"ID"}, cols...)
	if *all {
		header = append(header, "deleted")
	}
	_, _ = fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t")))

	for _, e := range entries {
		row := []string{e.ID}
		for _, c := range cols {
			row = append(row, cell(e.Record, c))
		}
		if *all {
			row = append(row, fmt.Sprintf("%v", e.Record.Deleted()))
		}
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "\n%d %s record(s)\n", len(entries), t)
	return nil
}

// DeleteCommand soft-deletes a record by storage key.
func DeleteCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	objectType := fs.String("type", "", "Object type (required)")
	id := fs.String("id", "", "Storage key (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := models.ParseObjectType(*objectType)
	if err != nil {
		return fmt.Errorf("--type: %w", err)
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	res, err := app.Query.SoftDelete(ctx, t, *id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	printResult(w, res)
	_, _ = fmt.Fprintf(w, "  Undo with: sfcrm undo --type %s --id %s\n", t, res.ID)
	return nil
}

// UndoCommand restores a soft-deleted record. With --id the stored record
// is restored as it is; with --json or --file the given pre-delete record is
// merged back.
func UndoCommand(ctx context.Context, app *App, in io.Reader, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("undo", flag.ContinueOnError)
	objectType := fs.String("type", "", "Object type (required)")
	id := fs.String("id", "", "Storage key of the deleted record")
	inline := fs.String("json", "", "Pre-delete record as a JSON object")
	file := fs.String("file", "", "Read the pre-delete record from a JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	t, err := models.ParseObjectType(*objectType)
	if err != nil {
		return fmt.Errorf("--type: %w", err)
	}

	var record models.Record
	if *id != "" && *inline == "" && *file == "" {
		record, err = app.Query.Get(ctx, t, *id)
	} else {
		record, err = readRecordArg(in, *inline, *file)
	}
	if err != nil {
		return err
	}

	res, err := app.Query.UndoDelete(ctx, t, record)
	if err != nil {
		return fmt.Errorf("failed to undo delete: %w", err)
	}
	printResult(w, res)
	return nil
}
