// Package config handles crescent.toml interpreter configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file the loader looks for.
const FileName = "crescent.toml"

// Config holds interpreter tuning. Every field has a working default, so a
// missing file or an empty section is fine.
type Config struct {
	VM    VMConfig    `toml:"vm"`
	GC    GCConfig    `toml:"gc"`
	Cache CacheConfig `toml:"cache"`

	// Dir is the directory containing the crescent.toml file (set at
	// load time).
	Dir string `toml:"-"`
}

// VMConfig bounds machine resources.
type VMConfig struct {
	MaxCallDepth int `toml:"max-call-depth"`
	MaxStack     int `toml:"max-stack"`
}

// GCConfig tunes the collector.
type GCConfig struct {
	Threshold int     `toml:"threshold"`     // object count triggering a cycle
	Growth    float64 `toml:"growth-factor"` // threshold multiplier after a cycle
}

// CacheConfig configures the compiled-prototype cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // sqlite file, relative to Dir
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			MaxCallDepth: 200,
			MaxStack:     65536,
		},
		GC: GCConfig{
			Threshold: 4096,
			Growth:    2.0,
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    ".crescent/cache.db",
		},
	}
}

// Load parses a crescent.toml file from the given directory and applies
// defaults to unset fields.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.applyDefaults()

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a crescent.toml file, then
// loads and returns it. Returns the defaults if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			c := Default()
			c.Dir = startDir
			return c, nil
		}
		dir = parent
	}
}

// applyDefaults fills zero-valued fields after an explicit load, so a file
// setting only one knob keeps the defaults for the rest.
func (c *Config) applyDefaults() {
	d := Default()
	if c.VM.MaxCallDepth <= 0 {
		c.VM.MaxCallDepth = d.VM.MaxCallDepth
	}
	if c.VM.MaxStack <= 0 {
		c.VM.MaxStack = d.VM.MaxStack
	}
	if c.GC.Threshold <= 0 {
		c.GC.Threshold = d.GC.Threshold
	}
	if c.GC.Growth <= 1 {
		c.GC.Growth = d.GC.Growth
	}
	if c.Cache.Path == "" {
		c.Cache.Path = d.Cache.Path
	}
}

// CachePath returns the absolute path of the prototype cache database.
func (c *Config) CachePath() string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(c.Dir, c.Cache.Path)
}
