package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the data root used when none is configured:
// $XDG_DATA_HOME/courier, /var/lib/courier, the macOS or Windows
// application data directory, or ~/.courier, in that order. Without a home
// directory it is ./data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	return dataDirFor(home, os.Getenv("XDG_DATA_HOME"), isDir)
}

func dataDirFor(home, xdg string, exists func(string) bool) string {
	switch {
	case xdg != "":
		return filepath.Join(xdg, "courier")
	case exists("/var/lib"):
		return "/var/lib/courier"
	case exists(filepath.Join(home, "Library")):
		return filepath.Join(home, "Library", "Application Support", "Courier")
	case exists(filepath.Join(home, "AppData")):
		return filepath.Join(home, "AppData", "Local", "Courier")
	default:
		return filepath.Join(home, ".courier")
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
