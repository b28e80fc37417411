package adapter

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"

	"footprint/internal/domain"
	"footprint/internal/module"
)

const testServerVersion = "SSH-2.0-OpenSSH_9.6p1 Ubuntu-3ubuntu13"

// sshServer runs a loopback SSH server that rejects every login and
// returns its port and host key
func sshServer(t *testing.T) (int, ssh.PublicKey) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	config := &ssh.ServerConfig{
		ServerVersion: testServerVersion,
		PasswordCallback: func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
			return nil, fmt.Errorf("password rejected")
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				// fails once the client gives up on authentication
				ssh.NewServerConn(c, config)
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, signer.PublicKey()
}

func newTestSSHHostKey(t *testing.T, opts module.Options) *SSHHostKey {
	t.Helper()
	s := NewSSHHostKey().(*SSHHostKey)
	if err := s.Configure(scanContext(t, "127.0.0.1"), opts); err != nil {
		t.Fatalf("Configure error: %v", err)
	}
	return s
}

func TestSSHHostKeyCapturesKey(t *testing.T) {
	port, hostKey := sshServer(t)
	s := newTestSSHHostKey(t, module.Options{"ports": strconv.Itoa(port)})

	rec := &recorder{}
	evt := event(t, s.sc, domain.EventTCPPortOpen, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err := s.HandleEvent(context.Background(), evt, rec.emit); err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}

	keys := rec.data(domain.EventSSHHostKey)
	if len(keys) != 1 {
		t.Fatalf("expected one host key, got %v", keys)
	}
	want := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(hostKey)))
	if keys[0] != want {
		t.Errorf("host key = %q, want %q", keys[0], want)
	}
	if !strings.HasPrefix(keys[0], "ssh-ed25519 ") {
		t.Errorf("expected an ed25519 key, got %q", keys[0])
	}

	if got := rec.data(domain.EventSoftwareUsed); len(got) != 1 || got[0] != "OpenSSH 9.6p1" {
		t.Errorf("software = %v", got)
	}
	if got := rec.data(domain.EventOperatingSystem); len(got) != 1 || got[0] != "Ubuntu" {
		t.Errorf("operating system = %v", got)
	}
}

func TestSSHHostKeyIgnoresOtherPorts(t *testing.T) {
	s := newTestSSHHostKey(t, nil)

	for _, data := range []string{"192.0.2.1:443", "not-a-port-event"} {
		rec := &recorder{}
		if err := s.HandleEvent(context.Background(), event(t, s.sc, domain.EventTCPPortOpen, data), rec.emit); err != nil {
			t.Errorf("%s: unexpected error %v", data, err)
		}
		if rec.count() != 0 {
			t.Errorf("%s: expected nothing emitted, got %v", data, rec.events)
		}
	}
}

func TestSSHHostKeyUnreachable(t *testing.T) {
	port := closedPort(t)
	s := newTestSSHHostKey(t, module.Options{"ports": []any{port}})

	rec := &recorder{}
	evt := event(t, s.sc, domain.EventTCPPortOpen, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	err := s.HandleEvent(context.Background(), evt, rec.emit)
	if !errors.Is(err, module.ErrUpstreamFetch) {
		t.Errorf("expected ErrUpstreamFetch, got %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected nothing emitted, got %v", rec.events)
	}
}

func TestSSHHostKeyConfigure(t *testing.T) {
	s := newTestSSHHostKey(t, nil)
	if !s.ports[22] || len(s.ports) != 1 {
		t.Errorf("expected default port 22, got %v", s.ports)
	}
	if s.user != "footprint" {
		t.Errorf("expected default user, got %s", s.user)
	}

	bad := NewSSHHostKey()
	if err := bad.Configure(scanContext(t, "127.0.0.1"), module.Options{"ports": "22,0"}); err == nil {
		t.Error("expected error for port 0")
	}
}

func TestParseServerVersion(t *testing.T) {
	tests := []struct {
		line         string
		wantSoftware string
		wantOS       string
	}{
		{"SSH-2.0-OpenSSH_9.6p1 Ubuntu-3ubuntu13", "OpenSSH 9.6p1", "Ubuntu"},
		{"SSH-2.0-OpenSSH_9.2p1 Debian-2+deb12u3", "OpenSSH 9.2p1", "Debian"},
		{"SSH-2.0-OpenSSH_8.0 FreeBSD-20200214", "OpenSSH 8.0", "FreeBSD"},
		{"SSH-2.0-OpenSSH_8.7", "OpenSSH 8.7", ""},
		{"SSH-2.0-dropbear_2022.83", "dropbear 2022.83", ""},
		{"SSH-2.0-OpenSSH_for_Windows_8.1", "OpenSSH for_Windows_8.1", "Windows"},
		{"HTTP/1.1 400 Bad Request", "", ""},
		{"SSH-2.0", "", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			software, osName := parseServerVersion(tt.line)
			if software != tt.wantSoftware || osName != tt.wantOS {
				t.Errorf("parseServerVersion(%q) = (%q, %q), want (%q, %q)",
					tt.line, software, osName, tt.wantSoftware, tt.wantOS)
			}
		})
	}
}

func TestIdentLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "SSH-2.0-OpenSSH_9.6\r\n", "SSH-2.0-OpenSSH_9.6"},
		{"preamble lines", "welcome\r\nSSH-2.0-x\r\n", "SSH-2.0-x"},
		{"incomplete", "SSH-2.0-Open", ""},
		{"no ident", "hello\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := identLine([]byte(tt.input)); got != tt.want {
				t.Errorf("identLine(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
