package adapter

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"footprint/internal/domain"
	"footprint/internal/module"
)

// TCPScanConfig holds configuration for the connect scanner
type TCPScanConfig struct {
	// Ports are probed on every address
	Ports []int
	// Timeout for individual connection attempts
	Timeout time.Duration
	// MaxConcurrent limits parallel probes per address
	MaxConcurrent int
	// BannerTimeout for reading service banners
	BannerTimeout time.Duration
}

// DefaultTCPScanConfig returns the common service ports and short timeouts
func DefaultTCPScanConfig() TCPScanConfig {
	return TCPScanConfig{
		Ports: []int{
			21, 22, 23, 25, 53, 80, 110, 143, 443, 445,
			993, 995, 3306, 3389, 5432, 5900, 6443,
			8080, 8443, 9090, 9100,
		},
		Timeout:       1 * time.Second,
		MaxConcurrent: 20,
		BannerTimeout: 1 * time.Second,
	}
}

// TCPScan probes ports with plain TCP connects and grabs banners. It needs
// no external binary or privileges.
type TCPScan struct {
	base
	config TCPScanConfig
}

// NewTCPScan creates the tcpscan module
func NewTCPScan() module.Module {
	return &TCPScan{config: DefaultTCPScanConfig()}
}

// Name returns the module identifier
func (s *TCPScan) Name() string { return "tcpscan" }

// Descriptor declares watched and produced event types
func (s *TCPScan) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:     s.Name(),
		Summary:  "Probes common TCP ports with connect scans and grabs service banners.",
		Watched:  []string{domain.EventIPAddress, domain.EventIPv6Address},
		Produced: []string{domain.EventTCPPortOpen, domain.EventTCPPortOpenBanner},
		UseCases: []string{module.UseCaseFootprint, module.UseCaseInvestigate},
	}
}

// Configure resets the scan settings from options
func (s *TCPScan) Configure(sc *module.ScanContext, opts module.Options) error {
	s.setup(sc)
	s.config = DefaultTCPScanConfig()

	if ports := opts.Strings("ports"); len(ports) > 0 {
		parsed := make([]int, 0, len(ports))
		for _, p := range ports {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 1 || n > 65535 {
				return fmt.Errorf("tcpscan: invalid port %q", p)
			}
			parsed = append(parsed, n)
		}
		s.config.Ports = parsed
	}
	s.config.Timeout = opts.Duration("connect_timeout", s.config.Timeout)
	s.config.BannerTimeout = opts.Duration("banner_timeout", s.config.BannerTimeout)
	if n := opts.Int("max_concurrent", 0); n > 0 {
		s.config.MaxConcurrent = n
	}
	return nil
}

// HandleEvent scans one address
func (s *TCPScan) HandleEvent(ctx context.Context, evt *domain.Event, emit module.Notify) error {
	ip := evt.Data()
	details := s.scanHost(ctx, ip)
	if module.CheckForStop(ctx) {
		return ctx.Err()
	}

	for _, d := range details {
		if err := emit(domain.EventTCPPortOpen, net.JoinHostPort(ip, strconv.Itoa(d.Port))); err != nil {
			return err
		}
		if d.Banner != "" {
			if err := emit(domain.EventTCPPortOpenBanner, d.Banner); err != nil {
				return err
			}
		}
	}
	return nil
}

// scanHost probes every configured port of ip, in parallel
func (s *TCPScan) scanHost(ctx context.Context, ip string) []PortInfo {
	var (
		mu      sync.Mutex
		details []PortInfo
		wg      sync.WaitGroup
	)
	sem := make(chan struct{}, s.config.MaxConcurrent)

	for _, port := range s.config.Ports {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if module.CheckForStop(ctx) || !s.probePort(ctx, ip, p) {
				return
			}
			detail := PortInfo{
				Port:    p,
				Service: serviceName(p),
				Banner:  s.grabBanner(ctx, ip, p),
			}
			mu.Lock()
			details = append(details, detail)
			mu.Unlock()
		}(port)
	}
	wg.Wait()

	sort.Slice(details, func(i, j int) bool {
		return details[i].Port < details[j].Port
	})
	return details
}

// probePort attempts to connect to a TCP port
func (s *TCPScan) probePort(ctx context.Context, ip string, port int) bool {
	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// grabBanner attempts to read a service banner
func (s *TCPScan) grabBanner(ctx context.Context, ip string, port int) string {
	dialer := net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return ""
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(s.config.BannerTimeout))

	// HTTP only answers once asked
	if port == 80 || port == 8080 {
		fmt.Fprintf(conn, "HEAD / HTTP/1.0\r\nHost: %s\r\n\r\n", ip)
	}

	buf := make([]byte, 256)
	n, _ := conn.Read(buf)
	if n == 0 {
		return ""
	}
	return cleanBanner(string(buf[:n]))
}

const maxBannerBytes = 100

// cleanBanner keeps the first line as valid UTF-8, trimmed and capped at
// maxBannerBytes without splitting a rune
func cleanBanner(banner string) string {
	if idx := strings.Index(banner, "\n"); idx >= 0 {
		banner = banner[:idx]
	}
	banner = strings.TrimSpace(strings.ToValidUTF8(banner, ""))
	if len(banner) > maxBannerBytes {
		cut := maxBannerBytes
		for cut > 0 && !utf8.RuneStart(banner[cut]) {
			cut--
		}
		banner = banner[:cut] + "..."
	}
	return banner
}
