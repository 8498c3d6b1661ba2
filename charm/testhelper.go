// ABOUTME: Test utilities for creating isolated charm clients
// ABOUTME: Uses temporary directories with BadgerDB for test isolation

package charm

import (
	"os"
	"path/filepath"
	"testing"
)

// NewTestClient creates a charm client using a temporary directory for testing.
// The returned cleanup function should be deferred to remove the temp directory.
// This implementation uses BadgerDB directly, avoiding the charm server dependency.
func NewTestClient(t *testing.T) (*Client, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sfcrm-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	c, err := NewLocalClient(filepath.Join(tmpDir, AppName))
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open local kv: %v", err)
	}

	cleanup := func() {
		if err := c.Close(); err != nil {
			t.Logf("Warning: failed to close test database: %v", err)
		}
		if err := os.RemoveAll(tmpDir); err != nil {
			t.Logf("Warning: failed to remove temp directory %s: %v", tmpDir, err)
		}
	}

	return c, cleanup
}
