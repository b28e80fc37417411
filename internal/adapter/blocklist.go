package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"

	"footprint/internal/domain"
	"footprint/internal/module"
)

// DefaultBlocklistURL is the VoIPBL list of abusive addresses and ranges
const DefaultBlocklistURL = "https://voipbl.org/update"

// Blocklist flags addresses and netblocks that appear on a published list
// of CIDR ranges. The list is fetched once per scan and cached on disk.
type Blocklist struct {
	base
	client   *http.Client
	url      string
	label    string
	agent    string
	cacheAge int

	checkAffiliates bool
	checkNetblocks  bool
	checkSubnets    bool

	list   []netip.Prefix
	loaded bool
	failed error
}

// NewBlocklist creates the blocklist module
func NewBlocklist() module.Module {
	return &Blocklist{}
}

// Name returns the module identifier
func (b *Blocklist) Name() string { return "blocklist" }

// Descriptor declares watched and produced event types
func (b *Blocklist) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:    b.Name(),
		Summary: "Checks if an IP address or netblock is listed by the VoIP Blacklist (VoIPBL).",
		Watched: []string{
			domain.EventIPAddress, domain.EventAffiliateIPAddress,
			domain.EventNetblockOwner, domain.EventNetblockMember,
		},
		Produced: []string{
			domain.EventMaliciousIPAddress, domain.EventMaliciousAffiliateIP,
			domain.EventMaliciousNetblock, domain.EventMaliciousSubnet,
		},
		UseCases: []string{module.UseCaseInvestigate, module.UseCasePassive},
	}
}

// Configure resets the list and reads options
func (b *Blocklist) Configure(sc *module.ScanContext, opts module.Options) error {
	b.setup(sc)
	b.url = opts.String("url", DefaultBlocklistURL)
	b.label = opts.String("label", "VoIP Blacklist (VoIPBL)")
	b.agent = opts.String("user_agent", "footprint")
	b.cacheAge = opts.Int("cache_age", 18)
	b.checkAffiliates = opts.Bool("check_affiliates", true)
	b.checkNetblocks = opts.Bool("check_netblocks", true)
	b.checkSubnets = opts.Bool("check_subnets", true)
	if b.client == nil {
		b.client = &http.Client{}
	}

	b.list = nil
	b.loaded = false
	b.failed = nil
	return nil
}

// HandleEvent checks one address or netblock against the list
func (b *Blocklist) HandleEvent(ctx context.Context, evt *domain.Event, emit module.Notify) error {
	var (
		eventType string
		netblock  bool
	)
	switch evt.Type() {
	case domain.EventIPAddress:
		eventType = domain.EventMaliciousIPAddress
	case domain.EventAffiliateIPAddress:
		if !b.checkAffiliates {
			return nil
		}
		eventType = domain.EventMaliciousAffiliateIP
	case domain.EventNetblockOwner:
		if !b.checkNetblocks {
			return nil
		}
		eventType, netblock = domain.EventMaliciousNetblock, true
	case domain.EventNetblockMember:
		if !b.checkSubnets {
			return nil
		}
		eventType, netblock = domain.EventMaliciousSubnet, true
	default:
		return nil
	}

	list, err := b.retrieve(ctx)
	if err != nil {
		return err
	}

	var listed bool
	if netblock {
		listed = overlapsAny(list, evt.Data())
	} else {
		listed = containsAddr(list, evt.Data())
	}
	if !listed {
		return nil
	}

	b.logger.Debug("found on blocklist", "data", evt.Data(), "type", evt.Type())
	return emit(eventType, fmt.Sprintf("%s [%s]\n%s", b.label, evt.Data(), b.url))
}

// retrieve returns the parsed list, from the cache when fresh. A failed
// fetch is remembered so the rest of the scan does not hammer the source.
func (b *Blocklist) retrieve(ctx context.Context) ([]netip.Prefix, error) {
	if b.loaded {
		return b.list, nil
	}
	if b.failed != nil {
		return nil, b.failed
	}

	if b.sc != nil && b.sc.Cache != nil {
		if data, ok := b.sc.Cache.Get(b.url, b.cacheAge); ok {
			b.list, b.loaded = parseBlocklist(data), true
			return b.list, nil
		}
	}

	var body string
	err := module.Retry(ctx, b.backoff, func(ctx context.Context) error {
		var err error
		body, err = b.fetch(ctx)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			b.failed = err
		}
		return nil, err
	}

	if b.sc != nil && b.sc.Cache != nil {
		if err := b.sc.Cache.Put(b.url, body); err != nil {
			b.logger.Warn("failed to cache blocklist", "error", err)
		}
	}
	b.list, b.loaded = parseBlocklist(body), true
	b.logger.Debug("blocklist loaded", "entries", len(b.list))
	return b.list, nil
}

func (b *Blocklist) fetch(ctx context.Context) (string, error) {
	rctx, cancel := b.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(rctx, http.MethodGet, b.url, nil)
	if err != nil {
		return "", &module.UpstreamError{Module: b.Name(), Source: b.url, Err: err}
	}
	req.Header.Set("User-Agent", b.agent)

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &module.UpstreamError{Module: b.Name(), Source: b.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &module.UpstreamError{Module: b.Name(), Source: b.url, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &module.UpstreamError{Module: b.Name(), Source: b.url, Status: resp.StatusCode, Err: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", &module.UpstreamError{Module: b.Name(), Source: b.url, Status: resp.StatusCode, Err: fmt.Errorf("empty response")}
	}
	return string(data), nil
}

// parseBlocklist reads one CIDR or address per line. Comments and lines
// that do not parse are skipped.
func parseBlocklist(data string) []netip.Prefix {
	var out []netip.Prefix
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if p, err := netip.ParsePrefix(line); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(line); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

func containsAddr(list []netip.Prefix, ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range list {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func overlapsAny(list []netip.Prefix, cidr string) bool {
	block, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		return false
	}
	block = block.Masked()
	for _, p := range list {
		if p.Overlaps(block) {
			return true
		}
	}
	return false
}
