// Package config loads the optional .foreach YAML file and builds the
// immutable Job that drives a run.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the optional defaults file.
const FileName = ".foreach"

// DefaultMaxOutput caps captured stdout/stderr per file when output is not
// inherited (MCP mode).
const DefaultMaxOutput = 1 << 20 // 1 MB

// Config holds the parsed .foreach file. All fields are optional; zero
// values mean "use the built-in default".
type Config struct {
	Version      int    `yaml:"version"`
	Out          string `yaml:"out"`        // default stdout redirect template
	Err          string `yaml:"err"`        // default stderr redirect template
	Parallel     int    `yaml:"parallel"`   // 0 = unbounded
	RawTimeout   string `yaml:"timeout"`    // per-process timeout, e.g. "30s"
	RawMaxOutput int    `yaml:"max_output"` // bytes
}

// Timeout returns the configured per-process timeout. Zero means no timeout.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// MaxOutputBytes returns the configured capture cap or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// Validate reports values that cannot be used.
func (c *Config) Validate() error {
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must be >= 0, got %d", c.Parallel)
	}
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.RawTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("timeout must not be negative, got %s", c.RawTimeout)
		}
	}
	return nil
}

// LoadResult holds the parsed config and where it came from.
type LoadResult struct {
	Config *Config
	Path   string // empty when no file was found
}

// Load looks for a .foreach file in dir and its ancestors, nearest first.
// If none exists, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	path, err := findConfig(dir)
	if err != nil {
		return &LoadResult{Config: &Config{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

var errNotFound = errors.New(FileName + " not found")

// findConfig walks upward from dir looking for a regular FileName file.
func findConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		p := filepath.Join(dir, FileName)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNotFound
		}
		dir = parent
	}
}
