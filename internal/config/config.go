package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the tunables shared by the dedupe and watch pipelines.
type Config struct {
	// Exclude lists directory or file names skipped during scans.
	Exclude []string `yaml:"exclude"`
	// MinSize is the smallest file size (bytes) considered for deduplication.
	MinSize int64 `yaml:"min_size"`
	// MaxSize is the largest file size (bytes) hashed; 0 means unlimited.
	MaxSize int64 `yaml:"max_size"`
	// Backup enables copying duplicates into a backup directory before deletion.
	Backup bool `yaml:"backup"`
	// WatchExtensions lists the file extensions watch mode reacts to.
	WatchExtensions []string `yaml:"watch_extensions"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Exclude: []string{
			".git",
			"node_modules",
			".DS_Store",
		},
		MinSize:         1,
		MaxSize:         0,
		Backup:          true,
		WatchExtensions: []string{".html", ".htm", ".css", ".js"},
	}
}

// Load reads a YAML config from path. A missing file is not an error: the
// defaults are returned so a bare invocation just works.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MinSize < 0 {
		return nil, fmt.Errorf("min_size must not be negative, got %d", cfg.MinSize)
	}
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("max_size must not be negative, got %d", cfg.MaxSize)
	}
	return cfg, nil
}

// Save persists the configuration so watch-mode settings survive restarts.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// WatchesExt reports whether watch mode should react to the given extension.
func (c *Config) WatchesExt(ext string) bool {
	for _, e := range c.WatchExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
