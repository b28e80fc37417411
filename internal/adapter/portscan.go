package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"

	"footprint/internal/domain"
	"footprint/internal/module"
)

const defaultPortRange = "22,25,53,80,443,445,3389,5432,5900,6443,8080,8443,9090,9100"

// nmapRunFunc runs one nmap scan; replaced in tests
type nmapRunFunc func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error)

// nmapInstalled reports whether the nmap binary can be found
var nmapInstalled = func() error {
	_, err := nmap.NewScanner(context.Background(), nmap.WithTargets("localhost"))
	return err
}

func runNmap(ctx context.Context, opts ...nmap.Option) (*nmap.Run, []string, error) {
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	result, warnings, err := scanner.Run()
	var w []string
	if warnings != nil {
		w = *warnings
	}
	if err != nil {
		return result, w, fmt.Errorf("scan failed: %w", err)
	}
	return result, w, nil
}

// PortScan runs nmap against discovered addresses
type PortScan struct {
	base
	timeout           time.Duration
	portRange         string
	serviceDetection  bool
	osDetection       bool
	skipHostDiscovery bool
	timing            nmap.Timing
	run               nmapRunFunc
	extra             []PortScanOption
}

// NewPortScan creates the portscan module. opts set defaults that the
// scan's module options may override.
func NewPortScan(opts ...PortScanOption) module.Module {
	return &PortScan{run: runNmap, extra: opts}
}

// Name returns the module identifier
func (p *PortScan) Name() string { return "portscan" }

// Descriptor declares watched and produced event types
func (p *PortScan) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:    p.Name(),
		Summary: "Scans discovered IP addresses for open TCP ports with nmap.",
		Watched: []string{domain.EventIPAddress, domain.EventIPv6Address},
		Produced: []string{
			domain.EventTCPPortOpen, domain.EventTCPPortOpenBanner,
			domain.EventSoftwareUsed, domain.EventOperatingSystem,
		},
		UseCases: []string{module.UseCaseFootprint, module.UseCaseInvestigate},
	}
}

// Configure resets the scan settings and checks nmap is installed
func (p *PortScan) Configure(sc *module.ScanContext, opts module.Options) error {
	p.setup(sc)
	p.timeout = 10 * time.Minute
	p.portRange = defaultPortRange
	p.serviceDetection = true
	p.osDetection = false // Requires root
	p.skipHostDiscovery = true
	p.timing = nmap.TimingNormal
	if p.run == nil {
		p.run = runNmap
	}

	for _, opt := range p.extra {
		opt(p)
	}
	for _, opt := range optionsFromConfig(opts) {
		opt(p)
	}

	if err := nmapInstalled(); err != nil {
		return fmt.Errorf("portscan: %w", err)
	}
	p.logger.Debug("portscan configured", "ports", p.portRange,
		"service_detection", p.serviceDetection, "os_detection", p.osDetection)
	return nil
}

// nmapOptions builds the nmap options for one target
func (p *PortScan) nmapOptions(target string) []nmap.Option {
	opts := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithPorts(p.portRange),
		nmap.WithTimingTemplate(p.timing),
	}
	if strings.Contains(target, ":") {
		opts = append(opts, nmap.WithIPv6Scanning())
	}
	if p.serviceDetection {
		opts = append(opts, nmap.WithServiceInfo())
	}
	if p.osDetection {
		opts = append(opts, nmap.WithOSDetection())
	}
	if p.skipHostDiscovery {
		opts = append(opts, nmap.WithSkipHostDiscovery())
	}
	return opts
}

// HandleEvent scans one address
func (p *PortScan) HandleEvent(ctx context.Context, evt *domain.Event, emit module.Notify) error {
	target := evt.Data()

	var result *nmap.Run
	err := module.Retry(ctx, p.backoff, func(ctx context.Context) error {
		sctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		p.logger.Debug("scanning target", "target", target)
		res, warnings, err := p.run(sctx, p.nmapOptions(target)...)
		if len(warnings) > 0 {
			p.logger.Debug("nmap warnings", "target", target, "warnings", warnings)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &module.UpstreamError{Module: p.Name(), Source: target, Err: err}
		}
		result = res
		return nil
	})
	if err != nil {
		return err
	}
	return p.processResults(ctx, result, emit)
}

// processResults turns nmap hosts into port, banner, software and OS events
func (p *PortScan) processResults(ctx context.Context, result *nmap.Run, emit module.Notify) error {
	if result == nil {
		return fmt.Errorf("nil scan result")
	}

	for _, host := range result.Hosts {
		if module.CheckForStop(ctx) {
			return ctx.Err()
		}
		if len(host.Addresses) == 0 || host.Status.State != "up" {
			continue
		}
		ip := hostAddress(host)
		if ip == "" {
			continue
		}

		details := p.portDetails(host.Ports)
		p.logger.Debug("processing host", "ip", ip, "open", len(details))

		software := make(map[string]bool)
		for _, d := range details {
			if err := emit(domain.EventTCPPortOpen, net.JoinHostPort(ip, strconv.Itoa(d.Port))); err != nil {
				return err
			}
			if d.Banner == "" {
				continue
			}
			if err := emit(domain.EventTCPPortOpenBanner, d.Banner); err != nil {
				return err
			}
		}

		for _, port := range host.Ports {
			if port.State.State != "open" || port.Service.Product == "" {
				continue
			}
			name := strings.TrimSpace(port.Service.Product + " " + port.Service.Version)
			if software[name] {
				continue
			}
			software[name] = true
			if err := emit(domain.EventSoftwareUsed, name); err != nil {
				return err
			}
		}

		if len(host.OS.Matches) > 0 && host.OS.Matches[0].Name != "" {
			if err := emit(domain.EventOperatingSystem, host.OS.Matches[0].Name); err != nil {
				return err
			}
		}
	}
	return nil
}

// hostAddress picks the IPv4 address of a host, falling back to the first
// non-MAC address
func hostAddress(host nmap.Host) string {
	for _, addr := range host.Addresses {
		if addr.AddrType == "ipv4" {
			return addr.Addr
		}
	}
	for _, addr := range host.Addresses {
		if addr.AddrType != "mac" {
			return addr.Addr
		}
	}
	return ""
}

// portDetails creates PortInfo structures from open nmap ports
func (p *PortScan) portDetails(ports []nmap.Port) []PortInfo {
	var details []PortInfo

	for _, port := range ports {
		if port.State.State != "open" {
			continue
		}

		name := port.Service.Name
		if name == "" {
			name = serviceName(int(port.ID))
		}

		info := PortInfo{
			Port:    int(port.ID),
			Service: name,
		}

		// Build banner from service info
		if port.Service.Product != "" {
			banner := port.Service.Product
			if port.Service.Version != "" {
				banner += " " + port.Service.Version
			}
			if port.Service.ExtraInfo != "" {
				banner += " (" + port.Service.ExtraInfo + ")"
			}
			info.Banner = banner
		}

		details = append(details, info)
	}

	return details
}

// parsePorts validates a port range string in nmap format
func parsePorts(portRange string) (string, error) {
	// Supported: "80,443,8080" or "1-1000" or "22,80-443,8080"
	parts := strings.Split(portRange, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return "", fmt.Errorf("invalid port range: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil || start < 1 || start > 65535 {
				return "", fmt.Errorf("invalid port number: %s", rangeParts[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil || end < 1 || end > 65535 || end < start {
				return "", fmt.Errorf("invalid port number: %s", rangeParts[1])
			}
		} else {
			port, err := strconv.Atoi(part)
			if err != nil || port < 1 || port > 65535 {
				return "", fmt.Errorf("invalid port number: %s", part)
			}
		}
	}
	return portRange, nil
}
