// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"beliefgraph/core/heavy"
	"beliefgraph/core/lite"
	"beliefgraph/internal/errors"
	"beliefgraph/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version" yaml:"version" validate:"required"`

	// Mode selects which engines propagate: lite, heavy or both
	Mode string `json:"mode" yaml:"mode" validate:"oneof=lite heavy both"`

	// Lite tunes the Lite engine
	Lite lite.Options `json:"lite" yaml:"lite"`

	// Heavy tunes the Heavy engine
	Heavy heavy.Options `json:"heavy" yaml:"heavy"`

	// Output contains output configuration
	Output OutputConfig `json:"output" yaml:"output"`

	// Storage contains run history configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging" yaml:"logging"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// DefaultFormat is the default output format
	DefaultFormat string `json:"default_format" yaml:"default_format" validate:"oneof=cli json"`
}

// StorageConfig contains run history settings
type StorageConfig struct {
	// Backend is memory, file or sqlite
	Backend string `json:"backend" yaml:"backend" validate:"oneof=memory file sqlite"`

	// Path is the directory (file) or database file (sqlite)
	Path string `json:"path" yaml:"path" validate:"required_unless=Backend memory"`
}

var validate = validator.New()

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Version: "1.0",
		Mode:    "both",
		Lite:    lite.DefaultOptions(),
		Heavy:   heavy.DefaultOptions(),
		Output: OutputConfig{
			DefaultFormat: "cli",
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    filepath.Join(homeDir, ".beliefgraph", "runs.db"),
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file. A missing file yields the defaults.
// .yaml and .yml files are read as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Config("failed to read config "+path, err)
	}

	config := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, errors.Config("failed to parse config "+path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Config("invalid configuration", err)
	}
	return nil
}

// Save saves configuration to a file in the format implied by its extension
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Config("failed to create config directory", err)
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return errors.Config("failed to encode config", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Config("failed to write config", err)
	}
	return nil
}

// LiteOptions returns the Lite engine settings
func (c *Config) LiteOptions() lite.Options {
	return c.Lite
}

// HeavyOptions returns the Heavy engine settings
func (c *Config) HeavyOptions() heavy.Options {
	return c.Heavy
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
