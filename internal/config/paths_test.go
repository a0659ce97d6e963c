package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
)

func TestDiscoverPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	if got := DiscoverPath(); got != "" {
		t.Fatalf("expected no config file, got %q", got)
	}

	dir := filepath.Join(home, AppName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	want := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(want, []byte("site:\n  id: fromxdg\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := DiscoverPath(); got != want {
		t.Fatalf("DiscoverPath() = %q, want %q", got, want)
	}

	cfg, err := Load(DiscoverPath())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Site.ID != "fromxdg" {
		t.Fatalf("expected site id from xdg config, got %q", cfg.Site.ID)
	}
}
