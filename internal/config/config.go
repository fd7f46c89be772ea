// Package config holds all LevelUp configuration: the levelup.yaml server
// config, the tools.json toolchain map, and the repos.json repository
// registry persisted in the workspace.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the LevelUp process configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP listen address for the submission API
	Listen string `yaml:"listen"`

	// Workspace root; repos are cloned under <workspace>/repos
	Workspace string `yaml:"workspace"`

	// Active compiler backend id ("msvc" or "clang")
	Compiler string `yaml:"compiler"`

	// Default validator id used when an edit does not pin one
	DefaultValidator string `yaml:"default_validator"`

	// Engine settings
	Engine EngineConfig `yaml:"engine"`

	// Store settings
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig tunes the atomic commit engine.
type EngineConfig struct {
	// BatchThreshold enables probability-gated batching when > 0: edits are
	// grouped while the product of their success probabilities stays at or
	// above the threshold. Zero means validate every edit individually.
	BatchThreshold float64 `yaml:"batch_threshold"`
}

// StoreConfig locates the result history database.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig controls the category file logger.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "LevelUp",
		Version: "1.0.0",

		Listen:    "127.0.0.1:8750",
		Workspace: "workspace",

		Compiler:         "clang",
		DefaultValidator: "asm_o0",

		Engine: EngineConfig{
			BatchThreshold: 0, // per-edit validation
		},

		Store: StoreConfig{
			DatabasePath: filepath.Join(".levelup", "results.db"),
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads levelup.yaml from the workspace, falling back to defaults when
// the file is absent. Values present in the file override defaults.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Workspace = workspace

	path := filepath.Join(workspace, "levelup.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Workspace == "" {
		cfg.Workspace = workspace
	}
	return cfg, nil
}

// ReposDir returns the directory repositories are cloned into.
func (c *Config) ReposDir() string {
	return filepath.Join(c.Workspace, "repos")
}

// DatabasePath resolves the result store path against the workspace.
func (c *Config) DatabasePath() string {
	p := c.Store.DatabasePath
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Workspace, p)
}
