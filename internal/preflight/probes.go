package preflight

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Resolver is the subset of net.Resolver the network probe uses
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Host is the view of the machine the probes read. OSHost returns the real
// one; tests swap in fakes.
type Host struct {
	Fs       afero.Fs
	Getenv   func(string) string
	Euid     func() int
	LookPath func(string) (string, error)
	// Output runs a command and returns its stdout
	Output func(ctx context.Context, name string, args ...string) ([]byte, error)
	// ListenICMP reports whether an ICMP socket can be opened
	ListenICMP func() error
	Resolver   Resolver
	// ProbeName is resolved to check upstream DNS works
	ProbeName string
}

// OSHost returns the probes' view of the running machine
func OSHost() *Host {
	return &Host{
		Fs:       afero.NewOsFs(),
		Getenv:   os.Getenv,
		Euid:     os.Geteuid,
		LookPath: exec.LookPath,
		Output: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		ListenICMP: func() error {
			c, err := net.ListenPacket("ip4:icmp", "0.0.0.0")
			if err != nil {
				return err
			}
			return c.Close()
		},
		Resolver:  net.DefaultResolver,
		ProbeName: "example.com",
	}
}

func (h *Host) read(path string) string {
	data, err := afero.ReadFile(h.Fs, path)
	if err != nil {
		return ""
	}
	return string(data)
}

// container runtimes and the /proc/1/cgroup markers that identify them
var cgroupMarkers = []struct {
	runtime string
	markers []string
}{
	{"kubernetes", []string{"kubepods"}},
	{"docker", []string{"docker-", "/docker/"}},
	{"podman", []string{"libpod-", "/libpod/"}},
	{"containerd", []string{"containerd-", "/containerd/"}},
	{"lxc", []string{"/lxc/", "lxc.payload"}},
}

func (h *Host) detectEnvironment() []Evidence {
	var out []Evidence

	if h.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		out = append(out, observe(CategoryEnvironment, "container_runtime", "kubernetes", 0.98,
			"env", "KUBERNETES_SERVICE_HOST set"))
	}
	if ok, _ := afero.Exists(h.Fs, "/.dockerenv"); ok {
		out = append(out, observe(CategoryEnvironment, "container_runtime", "docker", 0.95,
			"filesystem", "/.dockerenv exists"))
	}
	if ok, _ := afero.Exists(h.Fs, "/run/.containerenv"); ok {
		out = append(out, observe(CategoryEnvironment, "container_runtime", "podman", 0.95,
			"filesystem", "/run/.containerenv exists"))
	}

	if cgroup := h.read("/proc/1/cgroup"); cgroup != "" {
		for _, cm := range cgroupMarkers {
			for _, m := range cm.markers {
				if strings.Contains(cgroup, m) {
					out = append(out, observe(CategoryEnvironment, "container_runtime", cm.runtime, 0.90,
						"procfs", fmt.Sprintf("/proc/1/cgroup contains %q", m)))
					break
				}
			}
		}
	}

	out = append(out, observe(CategoryEnvironment, "containerized", len(out) > 0, 0.85,
		"inference", fmt.Sprintf("%d container markers", len(out))))
	return out
}

func (h *Host) detectPermissions() []Evidence {
	euid := h.Euid()
	out := []Evidence{
		observe(CategoryPermissions, "is_root", euid == 0, 1.0, "syscall", fmt.Sprintf("effective uid %d", euid)),
	}

	if err := h.ListenICMP(); err != nil {
		out = append(out, observe(CategoryPermissions, "can_raw_socket", false, 0.90,
			"probe", "ICMP socket: "+err.Error()))
	} else {
		out = append(out, observe(CategoryPermissions, "can_raw_socket", true, 0.95,
			"probe", "opened ICMP socket"))
	}
	return out
}

func (h *Host) detectNmap(ctx context.Context) []Evidence {
	path, err := h.LookPath("nmap")
	if err != nil {
		return []Evidence{observe(CategoryCapability, "has_nmap", false, 0.95, "probe", "nmap not in PATH")}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	output, err := h.Output(ctx, path, "--version")
	if err != nil {
		return []Evidence{observe(CategoryCapability, "has_nmap", false, 0.85,
			"probe", "nmap --version failed: "+err.Error())}
	}

	version, _, _ := strings.Cut(string(output), "\n")
	return []Evidence{
		observe(CategoryCapability, "has_nmap", true, 0.99, "probe", path+" --version succeeded"),
		observe(CategoryCapability, "nmap_version", strings.TrimSpace(version), 0.99, "probe", "nmap --version"),
	}
}

func (h *Host) detectNetwork(ctx context.Context) []Evidence {
	var out []Evidence

	if gw, iface, ok := defaultGateway(h.read("/proc/net/route")); ok {
		out = append(out, observe(CategoryNetwork, "gateway", gw, 0.95, "procfs", "/proc/net/route default via "+iface))
	}

	if servers := nameservers(h.read("/etc/resolv.conf")); len(servers) > 0 {
		out = append(out, observe(CategoryNetwork, "dns_servers", servers, 0.95, "filesystem", "/etc/resolv.conf"))
	}

	if h.Resolver != nil && h.ProbeName != "" {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		addrs, err := h.Resolver.LookupHost(ctx, h.ProbeName)
		if err != nil || len(addrs) == 0 {
			method := "lookup " + h.ProbeName + " returned nothing"
			if err != nil {
				method = "lookup " + h.ProbeName + ": " + err.Error()
			}
			out = append(out, observe(CategoryNetwork, "dns_works", false, 0.90, "probe", method))
		} else {
			out = append(out, observe(CategoryNetwork, "dns_works", true, 0.95, "probe",
				fmt.Sprintf("lookup %s returned %d addresses", h.ProbeName, len(addrs))))
		}
	}
	return out
}

func (h *Host) detectCache(dir string) []Evidence {
	if dir == "" {
		return nil
	}
	if err := h.Fs.MkdirAll(dir, 0o755); err != nil {
		return []Evidence{observe(CategoryCapability, "cache_writable", false, 0.95, "probe", err.Error())}
	}
	f, err := afero.TempFile(h.Fs, dir, ".preflight-")
	if err != nil {
		return []Evidence{observe(CategoryCapability, "cache_writable", false, 0.95, "probe", err.Error())}
	}
	name := f.Name()
	f.Close()
	h.Fs.Remove(name)
	return []Evidence{observe(CategoryCapability, "cache_writable", true, 0.99, "probe", "created file in "+dir)}
}

// defaultGateway finds the default route in /proc/net/route, whose
// addresses are little-endian hex
func defaultGateway(table string) (gateway, iface string, ok bool) {
	sc := bufio.NewScanner(strings.NewReader(table))
	first := true
	for sc.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[1] != "00000000" || len(fields[2]) != 8 {
			continue
		}
		var b1, b2, b3, b4 uint8
		if _, err := fmt.Sscanf(fields[2], "%02x%02x%02x%02x", &b4, &b3, &b2, &b1); err != nil {
			continue
		}
		return fmt.Sprintf("%d.%d.%d.%d", b1, b2, b3, b4), fields[0], true
	}
	return "", "", false
}

func nameservers(resolvConf string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(resolvConf))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "nameserver" {
			out = append(out, fields[1])
		}
	}
	return out
}
