package adapter

import (
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"footprint/internal/module"
)

// PortScanOption is a functional option for configuring PortScan
type PortScanOption func(*PortScan)

// WithScanTimeout sets the timeout for one nmap run
func WithScanTimeout(d time.Duration) PortScanOption {
	return func(p *PortScan) {
		p.timeout = d
	}
}

// WithPortRange sets the ports to scan
// Format: "80,443,8080" or "1-1000" or "22,80-443,8080"
func WithPortRange(ports string) PortScanOption {
	return func(p *PortScan) {
		// Validate and set port range
		if validated, err := parsePorts(ports); err == nil {
			p.portRange = validated
		}
	}
}

// WithServiceDetection enables or disables service version detection (-sV)
func WithServiceDetection(enabled bool) PortScanOption {
	return func(p *PortScan) {
		p.serviceDetection = enabled
	}
}

// WithOSDetection enables or disables OS detection (-O)
// Note: OS detection requires root privileges
func WithOSDetection(enabled bool) PortScanOption {
	return func(p *PortScan) {
		p.osDetection = enabled
	}
}

// WithSkipHostDiscovery sets whether to skip ping and treat all hosts as online (-Pn)
// Useful for networks that block ICMP
func WithSkipHostDiscovery(skip bool) PortScanOption {
	return func(p *PortScan) {
		p.skipHostDiscovery = skip
	}
}

// WithTiming sets the nmap timing template, 0 (paranoid) to 5 (insane)
func WithTiming(level int) PortScanOption {
	return func(p *PortScan) {
		if level >= 0 && level <= 5 {
			p.timing = nmap.Timing(level)
		}
	}
}

// WithTopPorts configures scanning of top N ports
// Common values: 10, 100, 1000
func WithTopPorts(n int) PortScanOption {
	// The nmap library has no --top-ports; use fixed lists by frequency
	return func(p *PortScan) {
		switch {
		case n <= 10:
			p.portRange = "21,22,23,25,80,110,139,443,445,3389"
		case n <= 100:
			p.portRange = "21-23,25,53,80,110,111,135,139,143,443,445,993,995,1723,3306,3389,5900,8080"
		default:
			p.portRange = "1-1024"
		}
	}
}

// WithFastScan enables fast scan mode (fewer ports, quicker results)
func WithFastScan() PortScanOption {
	return func(p *PortScan) {
		p.portRange = "22,80,443"
		p.serviceDetection = false
		p.timeout = 5 * time.Minute
	}
}

// WithAggressiveScan enables aggressive scan mode (more ports, service detection, OS detection)
// Note: Requires root for OS detection
func WithAggressiveScan() PortScanOption {
	return func(p *PortScan) {
		p.portRange = "1-65535"
		p.serviceDetection = true
		p.osDetection = true
		p.timeout = 30 * time.Minute
	}
}

// optionsFromConfig translates module options into functional options.
// Presets apply first so explicit settings override them.
func optionsFromConfig(opts module.Options) []PortScanOption {
	var out []PortScanOption

	switch opts.String("mode", "") {
	case "fast":
		out = append(out, WithFastScan())
	case "aggressive":
		out = append(out, WithAggressiveScan())
	}
	if n := opts.Int("top_ports", 0); n > 0 {
		out = append(out, WithTopPorts(n))
	}
	if ports := opts.Strings("ports"); len(ports) > 0 {
		out = append(out, WithPortRange(strings.Join(ports, ",")))
	}
	if _, ok := opts["service_detection"]; ok {
		out = append(out, WithServiceDetection(opts.Bool("service_detection", true)))
	}
	if _, ok := opts["os_detection"]; ok {
		out = append(out, WithOSDetection(opts.Bool("os_detection", false)))
	}
	if _, ok := opts["skip_host_discovery"]; ok {
		out = append(out, WithSkipHostDiscovery(opts.Bool("skip_host_discovery", false)))
	}
	if _, ok := opts["timing"]; ok {
		out = append(out, WithTiming(opts.Int("timing", int(nmap.TimingNormal))))
	}
	if d := opts.Duration("timeout", 0); d > 0 {
		out = append(out, WithScanTimeout(d))
	}
	return out
}
