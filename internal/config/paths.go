package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the per-user config directory.
const AppName = "corpus-crawler"

// Dir returns the XDG config directory, e.g. ~/.config/corpus-crawler on Linux.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DiscoverPath returns Dir()/config.yaml when it exists, otherwise "".
func DiscoverPath() string {
	path := filepath.Join(Dir(), "config.yaml")
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}
