package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/docker/go-units"

	"github.com/JaimeStill/cappa/pkg/cappa"
)

// Environment variables overriding static content settings.
const (
	EnvStaticRoot          = "STATIC_ROOT"
	EnvStaticRoute         = "STATIC_ROUTE"
	EnvStaticShowHidden    = "STATIC_SHOW_HIDDEN"
	EnvStaticPrecompressed = "STATIC_PRECOMPRESSED"
	EnvStaticCacheSize     = "STATIC_CACHE_SIZE"
	EnvStaticCacheMaxItem  = "STATIC_CACHE_MAX_ITEM"
)

// StaticConfig controls the mounted static directory.
type StaticConfig struct {
	// Root is the directory mounted at Route.
	// Default: "public"
	Root  string `toml:"root" yaml:"root"`
	Route string `toml:"route" yaml:"route"`

	ShowHidden    bool `toml:"show_hidden" yaml:"show_hidden"`
	Precompressed bool `toml:"precompressed" yaml:"precompressed"`

	// CacheSize bounds the in-memory file cache. "0" disables caching.
	CacheSize       string `toml:"cache_size" yaml:"cache_size"`
	CacheMaxItem    string `toml:"cache_max_item" yaml:"cache_max_item"`
	cacheSizeVal    int64
	cacheMaxItemVal int64
}

// CacheSizeBytes returns the parsed cache size.
func (c *StaticConfig) CacheSizeBytes() int64 {
	return c.cacheSizeVal
}

// CacheMaxItemBytes returns the parsed per-file cache limit.
func (c *StaticConfig) CacheMaxItemBytes() int64 {
	return c.cacheMaxItemVal
}

// Options builds the responder options for this configuration, creating
// the file cache when one is configured. The caller owns the returned cache.
func (c *StaticConfig) Options() (cappa.StaticOptions, error) {
	opts := cappa.StaticOptions{
		ShowHidden:    c.ShowHidden,
		Precompressed: c.Precompressed,
	}

	if c.cacheSizeVal > 0 {
		cache, err := cappa.NewCache(c.cacheSizeVal, c.cacheMaxItemVal)
		if err != nil {
			return opts, fmt.Errorf("create cache: %w", err)
		}
		opts.Cache = cache
	}
	return opts, nil
}

// Finalize applies defaults, loads environment overrides, and validates the static configuration.
func (c *StaticConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *StaticConfig) Merge(overlay *StaticConfig) {
	if overlay.Root != "" {
		c.Root = overlay.Root
	}
	if overlay.Route != "" {
		c.Route = overlay.Route
	}
	if overlay.ShowHidden {
		c.ShowHidden = true
	}
	if overlay.Precompressed {
		c.Precompressed = true
	}
	if _, err := units.FromHumanSize(overlay.CacheSize); err == nil {
		c.CacheSize = overlay.CacheSize
	}
	if _, err := units.FromHumanSize(overlay.CacheMaxItem); err == nil {
		c.CacheMaxItem = overlay.CacheMaxItem
	}
}

func (c *StaticConfig) loadDefaults() {
	if c.Root == "" {
		c.Root = "public"
	}
	if c.Route == "" {
		c.Route = "/"
	}
	if c.CacheSize == "" {
		c.CacheSize = "0"
	}
	if c.CacheMaxItem == "" {
		c.CacheMaxItem = "1MB"
	}
}

func (c *StaticConfig) loadEnv() {
	if v := os.Getenv(EnvStaticRoot); v != "" {
		c.Root = v
	}
	if v := os.Getenv(EnvStaticRoute); v != "" {
		c.Route = v
	}
	if v := os.Getenv(EnvStaticShowHidden); v != "" {
		if show, err := strconv.ParseBool(v); err == nil {
			c.ShowHidden = show
		}
	}
	if v := os.Getenv(EnvStaticPrecompressed); v != "" {
		if pre, err := strconv.ParseBool(v); err == nil {
			c.Precompressed = pre
		}
	}
	if v := os.Getenv(EnvStaticCacheSize); v != "" {
		c.CacheSize = v
	}
	if v := os.Getenv(EnvStaticCacheMaxItem); v != "" {
		c.CacheMaxItem = v
	}
}

func (c *StaticConfig) validate() error {
	c.Route = cappa.NormalizeRoute(c.Route)

	size, err := units.FromHumanSize(c.CacheSize)
	if err != nil {
		return fmt.Errorf("invalid cache_size: %w", err)
	}
	if size < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	c.cacheSizeVal = size

	maxItem, err := units.FromHumanSize(c.CacheMaxItem)
	if err != nil {
		return fmt.Errorf("invalid cache_max_item: %w", err)
	}
	if maxItem <= 0 {
		return fmt.Errorf("cache_max_item must be positive")
	}
	c.cacheMaxItemVal = maxItem

	return nil
}
