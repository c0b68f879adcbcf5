// Package paths provides centralized path resolution for durandal-mcp.
// This package has NO internal imports (only stdlib) to avoid import cycles.
// Functions that can fail return errors to allow callers to log appropriately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BaseDir returns the durandal-mcp state directory (~/.durandal-mcp).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".durandal-mcp"), nil
}

// DataPath returns a path within the state directory (~/.durandal-mcp/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// UpdateCachePath returns the update-check cache file path.
func UpdateCachePath() (string, error) {
	return DataPath("update-cache.json")
}

// DefaultDatabasePath returns the default database location: the current
// working directory, not the state directory, so each workspace gets its
// own memory file unless DATABASE_PATH overrides it.
func DefaultDatabasePath() string {
	return filepath.Join(".", "durandal-mcp-memory.db")
}

// ExpandTilde expands a leading ~ to the user's home directory.
func ExpandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
