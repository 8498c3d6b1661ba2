// ABOUTME: Output helpers shared by subcommands
// ABOUTME: Tables for terminals, JSON when piped or asked for
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/harperreed/sfcrm/models"
)

const (
	formatAuto  = "auto"
	formatTable = "table"
	formatJSON  = "json"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// resolveFormat turns "auto" into table or json depending on w.
func resolveFormat(format string, w io.Writer) (string, error) {
	switch format {
	case formatTable, formatJSON:
		return format, nil
	case "", formatAuto:
		if isTerminal(w) {
			return formatTable, nil
		}
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q (want auto, table or json)", format)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cell renders a field for a table column, "-" when blank.
func cell(r models.Record, field string) string {
	v := r.Get(field)
	if v.IsBlank() {
		return "-"
	}
	s := v.Text()
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return strings.ReplaceAll(s, "\t", " ")
}

// columnsFor picks the table columns shown for an object type.
func columnsFor(t models.ObjectType) []string {
	switch t {
	case models.TypeOpportunity:
		return []string{models.FieldName, models.FieldAccountName, models.FieldStage, models.FieldAmount, models.FieldCloseDate}
	case models.TypeContact, models.TypeLead:
		return []string{models.FieldName, models.FieldEmail, models.FieldPhone, models.FieldTitle}
	case models.TypeTask:
		return []string{models.FieldName, models.FieldStatus, models.FieldDueDate}
	default:
		return []string{models.FieldName, models.FieldOwnerName}
	}
}
