// ABOUTME: Per-bucket counts and sync times for status output
// ABOUTME: Used by change logging, the CLI and the TUI header
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/sfcrm/models"
)

// BucketSummary describes one type bucket.
type BucketSummary struct {
	ObjectType models.ObjectType `json:"objectType"`
	Count      int               `json:"count"`
	Active     int               `json:"active"`
	LastSync   *time.Time        `json:"lastSync"`
}

// Summary reports every recognized bucket in a fixed order.
func Summary(root models.Root) []BucketSummary {
	out := make([]BucketSummary, 0, len(models.ObjectTypes))
	for _, t := range models.ObjectTypes {
		b, err := root.Bucket(t)
		if err != nil {
			continue
		}
		s := BucketSummary{ObjectType: t, Count: len(b.ByID), LastSync: b.LastSync}
		for _, r := range b.ByID {
			if !r.Deleted() {
				s.Active++
			}
		}
		out = append(out, s)
	}
	return out
}

// FormatSummary renders a summary as a single log-friendly line.
func FormatSummary(summaries []BucketSummary) string {
	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		sync := "never"
		if s.LastSync != nil {
			sync = s.LastSync.UTC().Format(time.RFC3339)
		}
		parts = append(parts, fmt.Sprintf("%s=%d (last sync %s)", s.ObjectType, s.Count, sync))
	}
	return strings.Join(parts, ", ")
}
