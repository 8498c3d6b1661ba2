// ABOUTME: Ingest command: scrape saved Lightning pages and merge their records
// ABOUTME: Files are parsed and merged concurrently; the engine serializes the writes
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/scrape"
)

// IngestStats counts merge decisions across an ingest run.
type IngestStats struct {
	mu        sync.Mutex
	Files     int
	Records   int
	Decisions map[merge.Decision]int
}

func (s *IngestStats) add(d merge.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Records++
	s.Decisions[d]++
}

// IngestCommand reads one or more saved HTML pages captured from pageURL.
func IngestCommand(ctx context.Context, app *App, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	pageURL := fs.String("url", "", "URL the pages were captured from (required)")
	workers := fs.Int("workers", 4, "Files parsed in parallel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pageURL == "" {
		return fmt.Errorf("--url is required")
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: sfcrm ingest --url <page url> <file.html>...")
	}

	stats, err := Ingest(ctx, app, *pageURL, fs.Args(), *workers, time.Now)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "✓ Ingested %d record(s) from %d file(s)\n", stats.Records, stats.Files)
	decisions := make([]string, 0, len(stats.Decisions))
	for d := range stats.Decisions {
		decisions = append(decisions, string(d))
	}
	sort.Strings(decisions)
	for _, d := range decisions {
		_, _ = fmt.Fprintf(w, "  %-14s %d\n", d, stats.Decisions[merge.Decision(d)])
	}
	return nil
}

// Ingest scrapes each file as the page at pageURL and merges every record.
// The first failure cancels the remaining files.
func Ingest(ctx context.Context, app *App, pageURL string, files []string, workers int, now func() time.Time) (*IngestStats, error) {
	stats := &IngestStats{Files: len(files), Decisions: map[merge.Decision]int{}}
	logger := app.Logger.With("component", "ingest")

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, path := range files {
		g.Go(func() error {
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()

			batch, err := scrape.Page(f, pageURL, now())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			logger.Debug("page scraped", "file", path, "kind", batch.Kind, "records", len(batch.Records))

			for _, r := range batch.Records {
				res, err := app.Engine.MergeRecord(ctx, batch.ObjectType, r)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				stats.add(res.Decision)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}
