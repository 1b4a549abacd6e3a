package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Mode names accepted by the playback_mode config key.
const (
	ModeNameScrub    = "scrub"
	ModeNamePlayback = "playback"
)

// Config holds engine-level settings for the skinning runtime.
type Config struct {
	// PaletteRows is the number of texture rows backing the transform palette.
	// Each row holds 512 slots; total capacity is PaletteRows × 512.
	PaletteRows int `yaml:"palette_rows"`

	// PlaybackMode selects the frame-mapping policy: "scrub" clamps at the
	// clip boundary, "playback" wraps via modulo. Never mixed at runtime.
	PlaybackMode string `yaml:"playback_mode"`

	// PrepWorkers is the worker count for the parallel per-skeleton prep
	// phase. Zero means one fewer than the CPU count.
	PrepWorkers int `yaml:"prep_workers"`
}

// Default returns the configuration used when no file is present.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		PaletteRows:  16,
		PlaybackMode: ModeNameScrub,
		PrepWorkers:  max(runtime.NumCPU()-1, 1),
	}
}

// Load reads a YAML config file, filling unset fields from Default.
// A missing file is not an error; it yields the defaults.
//
// Parameters:
//   - path: the config file path
//
// Returns:
//   - Config: the loaded configuration
//   - error: error if the file exists but cannot be read or parsed
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("config file not found, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.PaletteRows <= 0 {
		slog.Warn("invalid palette_rows, using default", "value", cfg.PaletteRows)
		cfg.PaletteRows = Default().PaletteRows
	}
	switch cfg.PlaybackMode {
	case ModeNameScrub, ModeNamePlayback:
	default:
		slog.Warn("unknown playback_mode, using scrub", "value", cfg.PlaybackMode)
		cfg.PlaybackMode = ModeNameScrub
	}
	if cfg.PrepWorkers <= 0 {
		cfg.PrepWorkers = Default().PrepWorkers
	}

	return cfg, nil
}
