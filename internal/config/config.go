// Package config provides application configuration management with support for
// TOML or YAML files, environment variable overrides, and configuration overlays.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/JaimeStill/cappa/pkg/logging"
	"github.com/JaimeStill/cappa/pkg/middleware"
)

const (
	// BaseConfigFile is the primary configuration file name.
	BaseConfigFile = "config.toml"

	// BaseConfigFileYAML is read when no TOML base file exists.
	BaseConfigFileYAML = "config.yaml"

	// OverlayConfigPattern is the file name pattern for environment-specific overlays.
	OverlayConfigPattern = "config.%s.toml"

	// OverlayConfigPatternYAML is the YAML form of OverlayConfigPattern.
	OverlayConfigPatternYAML = "config.%s.yaml"

	// EnvServiceEnv specifies the environment name for configuration overlays.
	EnvServiceEnv = "SERVICE_ENV"

	// EnvServiceShutdownTimeout overrides the service shutdown timeout.
	EnvServiceShutdownTimeout = "SERVICE_SHUTDOWN_TIMEOUT"
)

// Config represents the root service configuration.
type Config struct {
	Server          ServerConfig              `toml:"server" yaml:"server"`
	Logging         logging.Config            `toml:"logging" yaml:"logging"`
	CORS            middleware.CORSConfig     `toml:"cors" yaml:"cors"`
	Compression     middleware.CompressConfig `toml:"compression" yaml:"compression"`
	Static          StaticConfig              `toml:"static" yaml:"static"`
	ShutdownTimeout string                    `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ShutdownTimeoutDuration parses and returns the shutdown timeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads configuration from the working directory. See LoadDir.
func Load() (*Config, error) {
	return LoadDir(".")
}

// LoadDir reads the base configuration file in dir, applies any
// environment-specific overlay, and finalizes the result. A missing base
// file yields the defaults.
func LoadDir(dir string) (*Config, error) {
	cfg, err := loadBase(dir)
	if err != nil {
		return nil, err
	}

	if path := overlayPath(dir); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Logging.Finalize(loggingEnv); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Compression.Finalize(compressEnv); err != nil {
		return fmt.Errorf("compression: %w", err)
	}
	if err := c.Static.Finalize(); err != nil {
		return fmt.Errorf("static: %w", err)
	}
	return nil
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	c.Server.Merge(&overlay.Server)
	c.Logging.Merge(&overlay.Logging)
	c.CORS.Merge(&overlay.CORS)
	c.Compression.Merge(&overlay.Compression)
	c.Static.Merge(&overlay.Static)
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvServiceShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func loadBase(dir string) (*Config, error) {
	for _, name := range []string{BaseConfigFile, BaseConfigFileYAML} {
		cfg, err := load(filepath.Join(dir, name))
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return &Config{}, nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = toml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

func overlayPath(dir string) string {
	env := os.Getenv(EnvServiceEnv)
	if env == "" {
		return ""
	}

	for _, pattern := range []string{OverlayConfigPattern, OverlayConfigPatternYAML} {
		path := filepath.Join(dir, fmt.Sprintf(pattern, env))
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
