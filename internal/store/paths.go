package store

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveDataPath resolves the configured data root path.
// If empty, it falls back to ~/.kurier/data.
func ResolveDataPath(dataPath string) (string, error) {
	if trimmed := strings.TrimSpace(dataPath); trimmed != "" {
		return expand(trimmed)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kurier", "data"), nil
}

// PendingDir returns the pending collection directory.
func PendingDir(basePath string) string {
	return filepath.Join(basePath, "pending")
}

// ApprovedDir returns the approved collection directory.
func ApprovedDir(basePath string) string {
	return filepath.Join(basePath, "approved")
}

// SessionsDir returns the auth session directory.
func SessionsDir(basePath string) string {
	return filepath.Join(basePath, "sessions")
}

// LockPath returns the single-instance lock file path.
func LockPath(basePath string) string {
	return filepath.Join(basePath, "kurier.lock")
}

func expand(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return filepath.Abs(path)
}
