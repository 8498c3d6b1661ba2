// ABOUTME: Import utility for moving an exported browser-storage dump into the record store.
// ABOUTME: Every record is re-merged so keys and freshness rules match this service.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/sfcrm/cli"
	"github.com/harperreed/sfcrm/config"
	"github.com/harperreed/sfcrm/merge"
	"github.com/harperreed/sfcrm/models"
)

func main() {
	dumpPath := flag.String("file", "", "Path to the exported storage dump (required)")
	configPath := flag.String("config", "", "Config file (default: XDG data dir)")
	dryRun := flag.Bool("dry-run", false, "Show what would be imported without writing")
	backup := flag.Bool("backup", true, "Write the current stored root to a backup file first")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "migrate"})

	if *dumpPath == "" {
		logger.Fatal("-file flag is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}

	data, err := os.ReadFile(*dumpPath)
	if err != nil {
		logger.Fatal("failed to read dump", "err", err)
	}
	root, err := extractRoot(data, cfg.StorageKey)
	if err != nil {
		logger.Fatal("invalid dump", "err", err)
	}

	if *dryRun {
		for _, line := range plan(root, logger) {
			fmt.Println(line)
		}
		return
	}

	app, err := cli.Open(cfg, cfg.NewLogger(os.Stderr))
	if err != nil {
		logger.Fatal("failed to open store", "err", err)
	}
	defer func() { _ = app.Close() }()

	ctx := context.Background()
	if *backup {
		path, err := backupRoot(ctx, app.Engine, *dumpPath)
		if err != nil {
			logger.Fatal("backup failed", "err", err)
		}
		logger.Info("backup created", "path", path)
	}

	stats, err := importRoot(ctx, app.Engine, root, logger)
	if err != nil {
		logger.Fatal("migration failed", "err", err)
	}
	for _, d := range sortedDecisions(stats) {
		logger.Info("imported", "decision", d, "count", stats[d])
	}
	logger.Info("migration completed successfully")
}

// extractRoot accepts either {"<storageKey>": root} as returned by the
// browser storage API, or a bare root.
func extractRoot(data []byte, storageKey string) (models.Root, error) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("dump is not a JSON object: %w", err)
	}
	if inner, ok := wrapper[storageKey]; ok {
		data = inner
	}
	return models.DecodeRoot(data)
}

// bucketType maps a bucket key back to its object type.
func bucketType(key string) (models.ObjectType, bool) {
	t, err := models.ParseObjectType(key)
	if err != nil {
		return "", false
	}
	return t, true
}

func sortedKeys(b *models.Bucket) []string {
	keys := make([]string, 0, len(b.ByID))
	for k := range b.ByID {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// plan describes what importRoot would do.
func plan(root models.Root, logger *log.Logger) []string {
	var lines []string
	for _, t := range models.ObjectTypes {
		b, _ := root.Bucket(t)
		key, _ := t.BucketKey()
		lines = append(lines, fmt.Sprintf("%s: %d record(s)", key, len(b.ByID)))
	}
	for key := range root {
		if _, ok := bucketType(key); !ok {
			logger.Warn("unknown bucket will be skipped", "bucket", key)
		}
	}
	return lines
}

// importRoot merges every record of every recognized bucket. Keys are
// recomputed by the engine, so records keyed by a foreign hash land under
// this service's key for the same entity.
func importRoot(ctx context.Context, engine *merge.Engine, root models.Root, logger *log.Logger) (map[merge.Decision]int, error) {
	stats := map[merge.Decision]int{}
	for key := range root {
		if _, ok := bucketType(key); !ok {
			logger.Warn("skipping unknown bucket", "bucket", key)
		}
	}

	for _, t := range models.ObjectTypes {
		b, err := root.Bucket(t)
		if err != nil {
			return stats, err
		}
		for _, id := range sortedKeys(b) {
			r := b.ByID[id]
			if r == nil {
				continue
			}
			res, err := engine.MergeRecord(ctx, t, r)
			if err != nil {
				return stats, fmt.Errorf("failed to import %s %s: %w", t, id, err)
			}
			if res.ID != id {
				logger.Debug("record rekeyed", "type", t, "from", id, "to", res.ID)
			}
			stats[res.Decision]++
		}
	}
	return stats, nil
}

// backupRoot writes the currently stored root next to the dump.
func backupRoot(ctx context.Context, engine *merge.Engine, dumpPath string) (string, error) {
	root, err := engine.LoadRoot(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(map[string]models.Root{engine.StorageKey(): root}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}
	path := fmt.Sprintf("%s.backup.%s.json", dumpPath, time.Now().Format("20060102-150405"))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return path, nil
}

func sortedDecisions(stats map[merge.Decision]int) []merge.Decision {
	out := make([]merge.Decision, 0, len(stats))
	for d := range stats {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
