package adapter

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"footprint/internal/module"
)

// defaultTimeout bounds one outbound request when the scan sets none
const defaultTimeout = 15 * time.Second

// wellKnownPorts maps common TCP ports to a service name
var wellKnownPorts = map[int]string{
	21:   "ftp",
	22:   "ssh",
	23:   "telnet",
	25:   "smtp",
	53:   "dns",
	80:   "http",
	110:  "pop3",
	143:  "imap",
	443:  "https",
	445:  "smb",
	993:  "imaps",
	995:  "pop3s",
	3306: "mysql",
	3389: "rdp",
	5432: "postgres",
	5900: "vnc",
	6443: "k8s-api",
	8080: "http-alt",
	8443: "https-alt",
	9090: "prometheus",
	9100: "node-exporter",
}

// PortInfo contains details about an open port
type PortInfo struct {
	Port    int    `json:"port"`
	Service string `json:"service"`
	Banner  string `json:"banner,omitempty"`
}

// serviceName returns the well-known name of port, or "unknown-<port>"
func serviceName(port int) string {
	if name := wellKnownPorts[port]; name != "" {
		return name
	}
	return fmt.Sprintf("unknown-%d", port)
}

// base holds what every built-in module keeps from Configure
type base struct {
	sc      *module.ScanContext
	logger  *log.Logger
	timeout time.Duration
	backoff time.Duration
}

func (b *base) setup(sc *module.ScanContext) {
	b.sc = sc
	b.logger = log.Default()
	b.timeout = defaultTimeout
	b.backoff = time.Second
	if sc == nil {
		return
	}
	if sc.Logger != nil {
		b.logger = sc.Logger
	}
	if sc.Timeout > 0 {
		b.timeout = sc.Timeout
	}
	if sc.Backoff > 0 {
		b.backoff = sc.Backoff
	}
}

// withTimeout derives a per-request context
func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// splitHostPort parses "host:port" event data
func splitHostPort(data string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(data)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", data)
	}
	return host, port, nil
}
