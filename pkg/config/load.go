// Package config provides TOML-based configuration for tupimage.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/tupimage/config.toml
//  2. ~/.config/tupimage/config.toml
//
// If no file exists, returns DefaultConfig().
func Load() (*Config, error) {
	paths := configSearchPaths()
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return LoadFromFile(p)
		}
	}
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultConfig returns the default configuration with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(xdgDataHome(home), "tupimage")

	return &Config{
		IDSubspace:        "",
		IDColorBits:       24,
		IDUse3rdDiacritic: false,
		MaxIDsPerSubspace: 1024,
		IDDatabaseDir:     dataDir,

		CellSize:        CellSizeConfig{Auto: true},
		DefaultCellSize: CellSizeConfig{Width: 8, Height: 16},

		Scale:   1.0,
		MaxRows: 256,
		MaxCols: 256,

		MaxCommandSize: 4096,

		NumTmuxLayers:     0,
		NumTmuxLayersAuto: true,

		ReuploadMaxUploadsAgo: 1024,
		ReuploadMaxBytesAgo:   0,
		ReuploadMaxSecondsAgo: Duration{0},
		ForceReupload:         false,

		SupportedFormats:     nil,
		SupportedFormatsAuto: true,
		UploadMethod:         "auto",

		CheckResponse:        false,
		CheckResponseTimeout: Duration{1 * time.Second},

		StreamMaxSize: 0,
		FileMaxSize:   0,
		MaxUploadSize: 0,

		FewerDiacritics: false,
		PlaceholderChar: "",
		Background:      "",
	}
}

// applyEnvOverrides checks TUPIMAGE_* environment variables and overrides
// config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TUPIMAGE_ID_SUBSPACE"); v != "" {
		cfg.IDSubspace = v
	}
	if v := os.Getenv("TUPIMAGE_ID_DATABASE_DIR"); v != "" {
		cfg.IDDatabaseDir = v
	}
	if v := os.Getenv("TUPIMAGE_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scale = f
		}
	}
	if v := os.Getenv("TUPIMAGE_UPLOAD_METHOD"); v != "" {
		cfg.UploadMethod = v
	}
	if v := os.Getenv("TUPIMAGE_FORCE_REUPLOAD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ForceReupload = b
		}
	}
	if v := os.Getenv("TUPIMAGE_BACKGROUND"); v != "" {
		cfg.Background = v
	}
}

// configSearchPaths returns the ordered list of config file paths to try.
func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	var paths []string

	xdg := xdgConfigHome(home)
	paths = append(paths, filepath.Join(xdg, "tupimage", "config.toml"))

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	defaultXDG := filepath.Join(home, ".config")
	if xdg != defaultXDG {
		paths = append(paths, filepath.Join(defaultXDG, "tupimage", "config.toml"))
	}

	return paths
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}

// xdgDataHome returns XDG_DATA_HOME or ~/.local/share as fallback, used
// for the default id database location.
func xdgDataHome(home string) string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".local", "share")
}
