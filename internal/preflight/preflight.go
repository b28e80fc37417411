package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"footprint/internal/config"
)

// Report is the outcome of Run
type Report struct {
	Timestamp      time.Time      `json:"timestamp" yaml:"timestamp"`
	Duration       time.Duration  `json:"duration" yaml:"duration"`
	Evidence       []Evidence     `json:"evidence" yaml:"evidence"`
	Recommendation Recommendation `json:"recommendation" yaml:"recommendation"`
}

// Run probes the host and synthesizes a recommendation. cacheDir is checked
// for write access when set.
func Run(ctx context.Context, h *Host, cacheDir string, logger *log.Logger) *Report {
	if logger == nil {
		logger = log.Default()
	}
	start := time.Now()

	set := &Set{}
	phases := []struct {
		name  string
		probe func() []Evidence
	}{
		{"environment", h.detectEnvironment},
		{"permissions", h.detectPermissions},
		{"nmap", func() []Evidence { return h.detectNmap(ctx) }},
		{"network", func() []Evidence { return h.detectNetwork(ctx) }},
		{"cache", func() []Evidence { return h.detectCache(cacheDir) }},
	}
	for _, p := range phases {
		found := p.probe()
		set.Add(found...)
		logger.Debug("preflight phase done", "phase", p.name, "evidence", len(found))
	}

	rec := Synthesize(set)
	logger.Debug("preflight finished", "posture", rec.Posture, "warnings", len(rec.Warnings))
	return &Report{
		Timestamp:      start.UTC(),
		Duration:       time.Since(start),
		Evidence:       set.All(),
		Recommendation: rec,
	}
}

// Recommendation is the config preflight suggests for this host
type Recommendation struct {
	Posture  config.Posture                 `json:"posture" yaml:"posture"`
	Modules  map[string]config.ModuleConfig `json:"modules" yaml:"modules"`
	Reasons  []string                       `json:"reasons" yaml:"reasons"`
	Warnings []string                       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Config renders the recommendation as a config overlay
func (r Recommendation) Config() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Scan.Posture = r.Posture
	for name, mc := range r.Modules {
		cfg.Modules[name] = mc
	}
	return cfg
}

func (r *Recommendation) set(name string, enabled bool, opts map[string]any) {
	mc := r.Modules[name]
	mc.Enabled = &enabled
	if len(opts) > 0 {
		if mc.Options == nil {
			mc.Options = make(map[string]any)
		}
		for k, v := range opts {
			mc.Options[k] = v
		}
	}
	r.Modules[name] = mc
}

// Synthesize turns evidence into module settings and a posture
func Synthesize(s *Set) Recommendation {
	rec := Recommendation{
		Posture: config.PostureBalanced,
		Modules: make(map[string]config.ModuleConfig),
	}
	reason := func(format string, args ...any) {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf(format, args...))
	}

	root := s.Bool(CategoryPermissions, "is_root")
	containerized := s.Bool(CategoryEnvironment, "containerized")

	// port scanning
	if s.Bool(CategoryCapability, "has_nmap") {
		version, _ := s.String(CategoryCapability, "nmap_version")
		reason("nmap available (%s), using portscan", version)
		rec.set("tcpscan", false, nil)
		if root {
			reason("running as root, enabling nmap OS detection")
			rec.set("portscan", true, map[string]any{"os_detection": true})
		} else {
			reason("not root, nmap OS detection left off")
			rec.set("portscan", true, nil)
		}
	} else {
		reason("nmap not available, falling back to tcpscan")
		rec.set("portscan", false, nil)
		rec.set("tcpscan", true, nil)
	}

	if !s.Bool(CategoryPermissions, "can_raw_socket") {
		reason("no raw socket access, scans limited to TCP connect")
	}

	if containerized {
		runtime, _ := s.String(CategoryEnvironment, "container_runtime")
		reason("running in a %s container, reachable networks may be limited", runtime)
		if root {
			warn("running as root inside a container")
		}
	}

	// upstream reachability
	_, hasGateway := s.Best(CategoryNetwork, "gateway")
	dns, probed := s.Best(CategoryNetwork, "dns_works")
	dnsOK := probed && dns.Value == true
	switch {
	case probed && !dnsOK:
		rec.Posture = config.PostureCautious
		warn("DNS lookups failing (%s), dnsresolve will find little", dns.Method)
		reason("unreliable upstream, recommending the cautious posture")
	case !hasGateway && !containerized:
		warn("no default gateway found, remote targets may be unreachable")
	}

	if e, ok := s.Best(CategoryCapability, "cache_writable"); ok && e.Value == false {
		warn("cache directory not writable (%s), blocklist refetches every scan", e.Method)
	}
	return rec
}
