package middleware

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/docker/go-units"
)

// CORSEnv maps environment variable names for CORS configuration.
type CORSEnv struct {
	Enabled          string
	Origins          string
	AllowedMethods   string
	AllowedHeaders   string
	AllowCredentials string
	MaxAge           string
}

// CORSConfig contains Cross-Origin Resource Sharing configuration.
type CORSConfig struct {
	Enabled          bool     `toml:"enabled" yaml:"enabled"`
	Origins          []string `toml:"origins" yaml:"origins"`
	AllowedMethods   []string `toml:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `toml:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `toml:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `toml:"max_age" yaml:"max_age"`
}

// Finalize applies defaults and loads environment overrides.
func (c *CORSConfig) Finalize(env *CORSEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return nil
}

// Merge applies values from overlay configuration, including boolean and slice fields.
func (c *CORSConfig) Merge(overlay *CORSConfig) {
	c.Enabled = overlay.Enabled
	c.AllowCredentials = overlay.AllowCredentials

	if overlay.Origins != nil {
		c.Origins = overlay.Origins
	}
	if overlay.AllowedMethods != nil {
		c.AllowedMethods = overlay.AllowedMethods
	}
	if overlay.AllowedHeaders != nil {
		c.AllowedHeaders = overlay.AllowedHeaders
	}
	if overlay.MaxAge > 0 {
		c.MaxAge = overlay.MaxAge
	}
}

func (c *CORSConfig) loadDefaults() {
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = []string{"GET", "HEAD", "OPTIONS"}
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = []string{"Content-Type", "Authorization"}
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 3600
	}
}

func (c *CORSConfig) loadEnv(env *CORSEnv) {
	if v := lookup(env.Enabled); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Enabled = enabled
		}
	}
	if v := lookup(env.Origins); v != "" {
		c.Origins = splitList(v)
	}
	if v := lookup(env.AllowedMethods); v != "" {
		c.AllowedMethods = splitList(v)
	}
	if v := lookup(env.AllowedHeaders); v != "" {
		c.AllowedHeaders = splitList(v)
	}
	if v := lookup(env.AllowCredentials); v != "" {
		if creds, err := strconv.ParseBool(v); err == nil {
			c.AllowCredentials = creds
		}
	}
	if v := lookup(env.MaxAge); v != "" {
		if maxAge, err := strconv.Atoi(v); err == nil {
			c.MaxAge = maxAge
		}
	}
}

// CompressEnv maps environment variable names for compression configuration.
type CompressEnv struct {
	Enabled string
	MinSize string
}

// CompressConfig controls dynamic response compression. Enabled is a
// pointer so an overlay that omits it leaves the base setting alone;
// compression is on when nothing sets it.
type CompressConfig struct {
	Enabled    *bool  `toml:"enabled" yaml:"enabled"`
	MinSize    string `toml:"min_size" yaml:"min_size"`
	minSizeVal int64
}

// IsEnabled reports whether compression is switched on.
func (c *CompressConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MinSizeBytes returns the parsed minimum body size eligible for compression.
func (c *CompressConfig) MinSizeBytes() int64 {
	return c.minSizeVal
}

// Finalize applies defaults, loads environment overrides, and validates the configuration.
func (c *CompressConfig) Finalize(env *CompressEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge applies values from overlay configuration.
func (c *CompressConfig) Merge(overlay *CompressConfig) {
	if overlay.Enabled != nil {
		enabled := *overlay.Enabled
		c.Enabled = &enabled
	}
	if overlay.MinSize != "" {
		c.MinSize = overlay.MinSize
	}
}

func (c *CompressConfig) loadDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.MinSize == "" {
		c.MinSize = "1KB"
	}
}

func (c *CompressConfig) loadEnv(env *CompressEnv) {
	if v := lookup(env.Enabled); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Enabled = &enabled
		}
	}
	if v := lookup(env.MinSize); v != "" {
		c.MinSize = v
	}
}

func (c *CompressConfig) validate() error {
	size, err := units.FromHumanSize(c.MinSize)
	if err != nil {
		return fmt.Errorf("invalid min_size: %w", err)
	}
	if size < 0 {
		return fmt.Errorf("min_size must not be negative")
	}
	c.minSizeVal = size
	return nil
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
