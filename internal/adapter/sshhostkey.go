package adapter

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"

	"footprint/internal/domain"
	"footprint/internal/module"
)

// SSHHostKey reads the host key and server version of open SSH ports. It
// completes the key exchange only; authentication is expected to fail.
type SSHHostKey struct {
	base
	ports map[int]bool
	user  string
}

// NewSSHHostKey creates the sshhostkey module
func NewSSHHostKey() module.Module {
	return &SSHHostKey{}
}

// Name returns the module identifier
func (s *SSHHostKey) Name() string { return "sshhostkey" }

// Descriptor declares watched and produced event types
func (s *SSHHostKey) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:     s.Name(),
		Summary:  "Obtains SSH host keys and server software from open SSH ports.",
		Watched:  []string{domain.EventTCPPortOpen},
		Produced: []string{domain.EventSSHHostKey, domain.EventSoftwareUsed, domain.EventOperatingSystem},
		UseCases: []string{module.UseCaseFootprint, module.UseCaseInvestigate},
	}
}

// Configure sets the ports treated as SSH
func (s *SSHHostKey) Configure(sc *module.ScanContext, opts module.Options) error {
	s.setup(sc)
	s.user = opts.String("user", "footprint")
	s.ports = map[int]bool{22: true}

	if list := opts.Strings("ports"); len(list) > 0 {
		s.ports = make(map[int]bool, len(list))
		for _, p := range list {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 1 || n > 65535 {
				return fmt.Errorf("sshhostkey: invalid port %q", p)
			}
			s.ports[n] = true
		}
	}
	return nil
}

// HandleEvent handshakes with "host:port" when port is an SSH port
func (s *SSHHostKey) HandleEvent(ctx context.Context, evt *domain.Event, emit module.Notify) error {
	host, port, err := splitHostPort(evt.Data())
	if err != nil {
		s.logger.Debug("ignoring malformed port event", "data", evt.Data(), "error", err)
		return nil
	}
	if !s.ports[port] {
		return nil
	}

	var info *hostKeyInfo
	err = module.Retry(ctx, s.backoff, func(ctx context.Context) error {
		var err error
		info, err = s.handshake(ctx, host, port)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &module.UpstreamError{Module: s.Name(), Source: evt.Data(), Err: err}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("host key captured", "addr", evt.Data(), "fingerprint", info.fingerprint, "version", info.version)
	if err := emit(domain.EventSSHHostKey, info.key); err != nil {
		return err
	}
	software, osName := parseServerVersion(info.version)
	if software != "" {
		if err := emit(domain.EventSoftwareUsed, software); err != nil {
			return err
		}
	}
	if osName != "" {
		if err := emit(domain.EventOperatingSystem, osName); err != nil {
			return err
		}
	}
	return nil
}

type hostKeyInfo struct {
	key         string
	fingerprint string
	version     string
}

// handshake runs the SSH key exchange and captures the host key
func (s *SSHHostKey) handshake(ctx context.Context, host string, port int) (*hostKeyInfo, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	vc := &versionConn{Conn: conn}
	defer vc.Close()

	// stop the handshake when the scan stops
	stop := context.AfterFunc(ctx, func() { vc.Close() })
	defer stop()

	var (
		mu  sync.Mutex
		got ssh.PublicKey
	)
	config := &ssh.ClientConfig{
		User: s.user,
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			mu.Lock()
			got = key
			mu.Unlock()
			return nil
		},
		Timeout: s.timeout,
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(vc, addr, config)
	if err == nil {
		// the server accepted "none" auth
		ssh.NewClient(sshConn, chans, reqs).Close()
	}

	mu.Lock()
	key := got
	mu.Unlock()
	if key == nil {
		if err == nil {
			err = fmt.Errorf("no host key offered")
		}
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}

	return &hostKeyInfo{
		key:         strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key))),
		fingerprint: ssh.FingerprintSHA256(key),
		version:     vc.serverVersion(),
	}, nil
}

// versionConn records the server's identification line as it is read
type versionConn struct {
	net.Conn
	mu   sync.Mutex
	buf  bytes.Buffer
	done bool
}

func (c *versionConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	c.mu.Lock()
	if !c.done && n > 0 {
		c.buf.Write(p[:n])
		c.done = c.buf.Len() > 1024 || identLine(c.buf.Bytes()) != ""
	}
	c.mu.Unlock()
	return n, err
}

func (c *versionConn) serverVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return identLine(c.buf.Bytes())
}

// identLine returns the first complete line starting with "SSH-"
func identLine(b []byte) string {
	for {
		idx := bytes.IndexByte(b, '\n')
		if idx < 0 {
			return ""
		}
		line := strings.TrimRight(string(b[:idx]), "\r")
		if strings.HasPrefix(line, "SSH-") {
			return line
		}
		b = b[idx+1:]
	}
}

// knownDistributions maps lowercase markers in SSH version comments to an
// operating system name
var knownDistributions = []struct {
	marker string
	name   string
}{
	{"ubuntu", "Ubuntu"},
	{"debian", "Debian"},
	{"raspbian", "Raspbian"},
	{"freebsd", "FreeBSD"},
	{"openbsd", "OpenBSD"},
	{"netbsd", "NetBSD"},
	{"fedora", "Fedora"},
	{"el8", "Red Hat Enterprise Linux"},
	{"el9", "Red Hat Enterprise Linux"},
	{"windows", "Windows"},
}

// parseServerVersion splits an identification line such as
// "SSH-2.0-OpenSSH_9.6p1 Ubuntu-3ubuntu13" into software and OS
func parseServerVersion(line string) (software, osName string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "SSH-") {
		return "", ""
	}
	// SSH-protoversion-softwareversion SP comments
	parts := strings.SplitN(line, "-", 3)
	if len(parts) < 3 {
		return "", ""
	}
	rest := parts[2]
	comment := ""
	if idx := strings.IndexByte(rest, ' '); idx >= 0 {
		rest, comment = rest[:idx], strings.TrimSpace(rest[idx+1:])
	}
	software = strings.Replace(rest, "_", " ", 1)

	lower := strings.ToLower(comment + " " + rest)
	for _, d := range knownDistributions {
		if strings.Contains(lower, d.marker) {
			return software, d.name
		}
	}
	return software, ""
}
