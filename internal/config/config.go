// Package config loads the optional espburn.toml settings file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds tool defaults that flags override.
type Config struct {
	Port      string
	Baud      int
	FlashBaud int
	Chip      string
	FlashMode string
	FlashFreq string
	FlashSize string
	Compress  bool
	Verify    bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Baud:      115200,
		FlashBaud: 460800,
		FlashMode: "dio",
		FlashFreq: "40m",
		FlashSize: "4MB",
		Compress:  true,
		Verify:    true,
	}
}

type fileConfig struct {
	Port      string `toml:"port"`
	Baud      int    `toml:"baud"`
	FlashBaud int    `toml:"flash_baud"`
	Chip      string `toml:"chip"`
	FlashMode string `toml:"flash_mode"`
	FlashFreq string `toml:"flash_freq"`
	FlashSize string `toml:"flash_size"`
	Compress  bool   `toml:"compress"`
	Verify    bool   `toml:"verify"`
}

// Load reads settings from path on top of the defaults. Only keys
// present in the file override anything.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		if raw.Baud <= 0 {
			return Config{}, fmt.Errorf("config: baud must be positive, got %d", raw.Baud)
		}
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("flash_baud") {
		if raw.FlashBaud <= 0 {
			return Config{}, fmt.Errorf("config: flash_baud must be positive, got %d", raw.FlashBaud)
		}
		cfg.FlashBaud = raw.FlashBaud
	}
	if meta.IsDefined("chip") {
		cfg.Chip = strings.TrimSpace(raw.Chip)
	}
	if meta.IsDefined("flash_mode") {
		cfg.FlashMode = strings.TrimSpace(raw.FlashMode)
	}
	if meta.IsDefined("flash_freq") {
		cfg.FlashFreq = strings.TrimSpace(raw.FlashFreq)
	}
	if meta.IsDefined("flash_size") {
		cfg.FlashSize = strings.TrimSpace(raw.FlashSize)
	}
	if meta.IsDefined("compress") {
		cfg.Compress = raw.Compress
	}
	if meta.IsDefined("verify") {
		cfg.Verify = raw.Verify
	}

	return cfg, nil
}

// Discover loads espburn.toml from the working directory if present,
// otherwise returns the defaults.
func Discover() (Config, error) {
	path := filepath.Join(".", "espburn.toml")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, err
	}
	return Load(path)
}
