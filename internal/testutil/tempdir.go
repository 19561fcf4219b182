package testutil

import (
	"path/filepath"
	"testing"
)

// TempDir wraps t.TempDir for consistency and future shared setup.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}

// TempDBPath returns a database path inside a fresh temp dir.
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(TempDir(t), "test.db")
}
