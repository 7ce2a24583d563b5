package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "espburn.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_OverridesOnlyDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
port = "/dev/ttyUSB1"
flash_baud = 921600
verify = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "/dev/ttyUSB1" {
		t.Errorf("port = %q", cfg.Port)
	}
	if cfg.FlashBaud != 921600 {
		t.Errorf("flash_baud = %d", cfg.FlashBaud)
	}
	if cfg.Verify {
		t.Error("verify not overridden to false")
	}

	// Untouched keys keep their defaults.
	def := Default()
	if cfg.Baud != def.Baud || cfg.FlashMode != def.FlashMode || !cfg.Compress {
		t.Errorf("defaults disturbed: %+v", cfg)
	}
}

func TestLoad_RejectsBadBaud(t *testing.T) {
	path := writeConfig(t, "baud = -9600\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() with negative baud: want error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() of missing file: want error")
	}
}
