// Package config provides configuration management for footprint.
//
// The config file holds defaults for every scan (posture, use case, module
// options) and where state lives (database, cache). Per-scan options are
// flattened with Serialize and stored alongside the scan.
//
// Config file locations (priority order):
//  1. $FOOTPRINT_CONFIG
//  2. ./footprint.yaml
//  3. $XDG_CONFIG_HOME/footprint/config.yaml (or ~/.config/footprint/config.yaml)
//  4. /etc/footprint/config.yaml
//
// The database defaults to the XDG data dir and the blocklist cache to the
// XDG cache dir; see Locator.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	return OSLocator().Load()
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	return OSLocator().LoadFromPath(path)
}

// Parse decodes YAML config and fills in defaults
func Parse(data []byte) (*Config, error) {
	return OSLocator().Parse(data)
}

// Load reads the first config file l finds; with none it returns defaults
// and an empty path
func (l Locator) Load() (*Config, string, error) {
	path := l.Find()
	if path == "" {
		return l.DefaultConfig(), "", nil
	}
	return l.LoadFromPath(path)
}

// LoadFromPath reads path from l's filesystem
func (l Locator) LoadFromPath(path string) (*Config, string, error) {
	data, err := afero.ReadFile(l.Fs, path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := l.Parse(data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes YAML config and fills unset paths from l
func (l Locator) Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults(l)
	return &cfg, nil
}

// DefaultConfig returns defaults with paths resolved by l
func (l Locator) DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults(l)
	return cfg
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return OSLocator().DefaultConfig()
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults(loc Locator) {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Path == "" {
		c.Database.Path = loc.DatabasePath()
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = loc.CacheDir()
	}
	if c.Scan.UseCase == "" {
		c.Scan.UseCase = "all"
	}
	if c.Scan.Posture == "" {
		c.Scan.Posture = PostureBalanced
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Modules == nil {
		c.Modules = make(map[string]ModuleConfig)
	}
}

// EffectiveBehavior returns the posture profile with overrides applied
func (c *Config) EffectiveBehavior() BehaviorProfile {
	base := c.Scan.Posture.GetProfile()

	if c.Scan.Timeout != nil {
		base.Timeout = c.Scan.Timeout.Duration()
	}
	if c.Scan.Backoff != nil {
		base.Backoff = c.Scan.Backoff.Duration()
	}
	if c.Scan.MaxFailures != nil && *c.Scan.MaxFailures > 0 {
		base.MaxFailures = *c.Scan.MaxFailures
	}

	return base
}

// ModuleEnabled reports whether name is enabled, falling back to def when
// the config does not mention the module
func (c *Config) ModuleEnabled(name string, def bool) bool {
	mc, ok := c.Modules[name]
	if !ok || mc.Enabled == nil {
		return def
	}
	return *mc.Enabled
}

// ModuleOptions returns the configured option overrides for name
func (c *Config) ModuleOptions(name string) map[string]any {
	return c.Modules[name].Options
}

// NewLogger builds the root logger from the log section
func (c *Config) NewLogger(w io.Writer) *log.Logger {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}

	formatter := log.TextFormatter
	switch strings.ToLower(c.Log.Format) {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
	})
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	behavior := c.EffectiveBehavior()

	summary := fmt.Sprintf("Posture: %s, Use case: %s\n", c.Scan.Posture, c.Scan.UseCase)
	summary += fmt.Sprintf("Timeout: %s, Backoff: %s, Max failures: %d\n",
		behavior.Timeout, behavior.Backoff, behavior.MaxFailures)
	summary += fmt.Sprintf("Database: %s, Cache: %s (%dh)\n", c.Database.Path, c.Cache.Dir, c.Cache.MaxAgeHours)

	names := make([]string, 0, len(c.Modules))
	for name := range c.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	summary += fmt.Sprintf("Configured modules (%d):", len(names))
	for _, name := range names {
		summary += fmt.Sprintf(" %s", name)
	}

	return summary
}
