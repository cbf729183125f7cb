package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath turns a user-supplied path into an absolute, cleaned one.
// A leading "~" expands to the current user's home directory.
func ResolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}

	// Abs also cleans ".." and "." segments.
	return filepath.Abs(path)
}

// EnsureDir creates the directory if it does not exist yet.
func EnsureDir(dir string) error {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// EnsureParent makes sure the parent directory of path exists, so the
// file itself can be created right after.
func EnsureParent(path string) error {
	return EnsureDir(filepath.Dir(path))
}
