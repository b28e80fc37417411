package adapter

import (
	"fmt"

	"github.com/charmbracelet/log"

	"footprint/internal/config"
	"footprint/internal/module"
)

// Builtin pairs a module factory with its default configuration
type Builtin struct {
	Factory module.Factory
	Config  module.Config
}

// Builtins returns every built-in module with its defaults
func Builtins() []Builtin {
	return []Builtin{
		{
			Factory: NewDNSResolve,
			Config:  module.Config{Enabled: true, Options: module.Options{"reverse_lookup": true, "netblock_lookup": true, "max_netblock": 24}},
		},
		{
			Factory: func() module.Module { return NewPortScan() },
			Config:  module.Config{Enabled: true, Options: module.Options{"ports": defaultPortRange}},
		},
		{
			// fallback for hosts without nmap
			Factory: NewTCPScan,
			Config:  module.Config{Enabled: false},
		},
		{
			Factory: NewSSHHostKey,
			Config:  module.Config{Enabled: true, Options: module.Options{"ports": "22"}},
		},
		{
			Factory: NewBlocklist,
			Config:  module.Config{Enabled: true, Options: module.Options{"url": DefaultBlocklistURL, "cache_age": 18}},
		},
	}
}

// Register adds every built-in module to reg and applies cfg on top of the
// defaults; cfg may be nil.
func Register(reg *module.Registry, cfg *config.Config, logger *log.Logger) error {
	for _, b := range Builtins() {
		if err := reg.Register(b.Factory, b.Config); err != nil {
			return fmt.Errorf("register builtin: %w", err)
		}
	}
	if cfg == nil {
		return nil
	}
	return Apply(reg, cfg, logger)
}

// Apply sets enablement and options of the built-in modules from cfg. It is
// safe to call again when the configuration changes; options missing from
// cfg fall back to the module defaults.
func Apply(reg *module.Registry, cfg *config.Config, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	known := make(map[string]bool)
	for _, b := range Builtins() {
		name := b.Factory().Name()
		known[name] = true

		opts := module.Options(cfg.ModuleOptions(name))
		if _, caches := b.Config.Options["cache_age"]; caches && cfg.Cache.MaxAgeHours > 0 {
			opts = module.Options{"cache_age": cfg.Cache.MaxAgeHours}.Merge(opts)
		}
		enabled := cfg.ModuleEnabled(name, b.Config.Enabled)
		if err := reg.SetConfig(name, enabled, opts); err != nil {
			return err
		}
	}

	for name := range cfg.Modules {
		if !known[name] {
			logger.Warn("config names an unknown module", "module", name)
		}
	}
	return nil
}
