// ABOUTME: CLI commands for Charm KV sync operations
// ABOUTME: Simplified sync with SSH key auth - no login/logout needed

package charm

import (
	"flag"
	"fmt"
	"io"
)

// SyncStatusCommand shows current sync configuration and status.
func SyncStatusCommand(c *Client, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("sync status", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := c.Config()
	_, _ = fmt.Fprintln(w, "Charm Sync Status")
	_, _ = fmt.Fprintln(w, "─────────────────")
	_, _ = fmt.Fprintf(w, "Server:    %s\n", cfg.Host)
	_, _ = fmt.Fprintf(w, "Database:  %s\n", cfg.Name)
	_, _ = fmt.Fprintf(w, "Auto-sync: %v\n", cfg.AutoSync)

	if c.local != nil {
		_, _ = fmt.Fprintln(w, "\nStatus: Local only (no charm server)")
	} else if id, err := c.ID(); err != nil {
		_, _ = fmt.Fprintln(w, "\nStatus: Not connected")
	} else {
		_, _ = fmt.Fprintln(w, "\nStatus: Connected to Charm Cloud")
		_, _ = fmt.Fprintf(w, "ID:        %s\n", id)
	}

	keys, err := c.Keys()
	if err == nil {
		_, _ = fmt.Fprintf(w, "Keys:      %d\n", len(keys))
	}
	return nil
}

// SyncWipeCommand completely resets the KV store
// WARNING: This deletes all local data!
func SyncWipeCommand(c *Client, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("sync wipe", flag.ContinueOnError)
	confirm := fs.Bool("confirm", false, "Confirm data wipe")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*confirm {
		_, _ = fmt.Fprintln(w, "WARNING: This will delete ALL local data!")
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "To confirm, run:")
		_, _ = fmt.Fprintln(w, "  sfcrm sync wipe --confirm")
		return nil
	}

	if err := c.Reset(); err != nil {
		return fmt.Errorf("failed to reset KV store: %w", err)
	}

	_, _ = fmt.Fprintln(w, "✓ All data wiped")
	return nil
}

// SyncNowCommand performs an immediate sync.
func SyncNowCommand(c *Client, w io.Writer, args []string) error {
	fs := flag.NewFlagSet("sync now", flag.ContinueOnError)
	verbose := fs.Bool("verbose", false, "Show verbose output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *verbose {
		_, _ = fmt.Fprintln(w, "Syncing with server...")
	}

	if err := c.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	_, _ = fmt.Fprintln(w, "✓ Synced")
	return nil
}
