package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	consts "github.com/khanhnv2901/cybersafe/internal/shared/constants"
)

// dataDirEnvVar overrides the per-OS data directory.
const dataDirEnvVar = "CYBERSAFE_DATA_DIR"

const appDirName = "cybersafe"

// getDataDir returns the appropriate data directory for the current OS
// following XDG Base Directory specification on Linux/Unix
func getDataDir() (string, error) {
	var baseDir string

	if override := os.Getenv(dataDirEnvVar); override != "" {
		baseDir = override
	} else {
		switch runtime.GOOS {
		case "windows":
			baseDir = os.Getenv("LOCALAPPDATA")
			if baseDir == "" {
				baseDir = os.Getenv("APPDATA")
			}
			if baseDir == "" {
				return "", fmt.Errorf("could not determine Windows data directory")
			}
			baseDir = filepath.Join(baseDir, appDirName)

		case "darwin":
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("could not determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, "Library", "Application Support", appDirName)

		default:
			// $XDG_DATA_HOME/cybersafe > ~/.local/share/cybersafe
			if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
				baseDir = filepath.Join(xdgDataHome, appDirName)
			} else {
				homeDir, err := os.UserHomeDir()
				if err != nil {
					return "", fmt.Errorf("could not determine home directory: %w", err)
				}
				baseDir = filepath.Join(homeDir, ".local", "share", appDirName)
			}
		}
	}

	if err := os.MkdirAll(baseDir, consts.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return baseDir, nil
}

// defaultCacheDir is where the file cache backend keeps its entries.
func defaultCacheDir(dataDir string) string {
	return filepath.Join(dataDir, "cache")
}

// defaultAuditPath is the scan audit log location.
func defaultAuditPath(dataDir string) string {
	return filepath.Join(dataDir, "audit.jsonl")
}
