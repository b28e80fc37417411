package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version  int                     `yaml:"version"`
	Database DatabaseConfig          `yaml:"database"`
	Cache    CacheConfig             `yaml:"cache"`
	Scan     ScanConfig              `yaml:"scan"`
	Modules  map[string]ModuleConfig `yaml:"modules,omitempty"`
	Server   ServerConfig            `yaml:"server"`
	Log      LogConfig               `yaml:"log"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig locates the upstream payload cache
type CacheConfig struct {
	Dir string `yaml:"dir"`
	// MaxAgeHours replaces the cache_age default of every caching module;
	// 0 keeps each module's own default
	MaxAgeHours int `yaml:"max_age_hours"`
}

// ScanConfig holds defaults applied to every scan
type ScanConfig struct {
	UseCase string  `yaml:"use_case"`
	Posture Posture `yaml:"posture"`
	// Overrides of the posture profile
	MaxFailures *int      `yaml:"max_failures,omitempty"`
	Timeout     *Duration `yaml:"timeout,omitempty"`
	Backoff     *Duration `yaml:"backoff,omitempty"`
}

// ModuleConfig enables a module and overrides its options
type ModuleConfig struct {
	Enabled *bool          `yaml:"enabled,omitempty"`
	Options map[string]any `yaml:"options,omitempty"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects log level and output format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json, logfmt
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
