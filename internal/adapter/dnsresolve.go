package adapter

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"

	"footprint/internal/domain"
	"footprint/internal/module"
)

// Resolver is the subset of *net.Resolver the DNS module uses
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// DNSResolve resolves names to addresses and addresses back to names
type DNSResolve struct {
	base
	resolver       Resolver
	reverse        bool
	netblockLookup bool
	maxNetblock    int
}

// NewDNSResolve creates the dnsresolve module using the system resolver
func NewDNSResolve() module.Module {
	return &DNSResolve{resolver: net.DefaultResolver}
}

// Name returns the module identifier
func (d *DNSResolve) Name() string { return "dnsresolve" }

// Descriptor declares watched and produced event types
func (d *DNSResolve) Descriptor() module.Descriptor {
	return module.Descriptor{
		Name:    d.Name(),
		Summary: "Resolves hosts and IP addresses identified, also extracted from raw content.",
		Watched: []string{
			domain.EventInternetName, domain.EventDomainName,
			domain.EventIPAddress, domain.EventIPv6Address, domain.EventNetblockOwner,
		},
		Produced: []string{
			domain.EventIPAddress, domain.EventIPv6Address, domain.EventInternetName,
			domain.EventInternetNameUnresolve, domain.EventAffiliateInternetName,
		},
		UseCases: []string{module.UseCaseFootprint, module.UseCaseInvestigate, module.UseCasePassive},
	}
}

// Configure prepares the module for one scan
func (d *DNSResolve) Configure(sc *module.ScanContext, opts module.Options) error {
	d.setup(sc)
	if d.resolver == nil {
		d.resolver = net.DefaultResolver
	}
	d.reverse = opts.Bool("reverse_lookup", true)
	d.netblockLookup = opts.Bool("netblock_lookup", true)
	d.maxNetblock = opts.Int("max_netblock", 24)
	return nil
}

// HandleEvent resolves the event data
func (d *DNSResolve) HandleEvent(ctx context.Context, evt *domain.Event, emit module.Notify) error {
	switch evt.Type() {
	case domain.EventInternetName, domain.EventDomainName:
		return d.forward(ctx, evt, emit)
	case domain.EventIPAddress, domain.EventIPv6Address:
		if !d.reverse {
			return nil
		}
		return d.reverseNames(ctx, evt.Data(), emit)
	case domain.EventNetblockOwner:
		if !d.netblockLookup {
			return nil
		}
		return d.netblock(ctx, evt.Data(), emit)
	}
	return nil
}

func (d *DNSResolve) forward(ctx context.Context, evt *domain.Event, emit module.Notify) error {
	lctx, cancel := d.withTimeout(ctx)
	defer cancel()

	addrs, err := d.resolver.LookupHost(lctx, evt.Data())
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isNotFound(err) {
			if evt.Type() == domain.EventInternetName {
				return emit(domain.EventInternetNameUnresolve, evt.Data())
			}
			return nil
		}
		d.logger.Warn("lookup failed", "host", evt.Data(), "error", err)
		return nil
	}

	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		addr, err := netip.ParseAddr(a)
		if err != nil {
			continue
		}
		addr = addr.Unmap()
		value := addr.String()
		if seen[value] {
			continue
		}
		seen[value] = true

		eventType := domain.EventIPv6Address
		if addr.Is4() {
			eventType = domain.EventIPAddress
		}
		if err := emit(eventType, value); err != nil {
			return err
		}
	}
	return nil
}

// reverseNames emits the names ip resolves back to. Names under the target
// stay INTERNET_NAME; everything else is an affiliate.
func (d *DNSResolve) reverseNames(ctx context.Context, ip string, emit module.Notify) error {
	names, err := d.lookupAddr(ctx, ip)
	if err != nil {
		return err
	}
	for _, name := range names {
		eventType := domain.EventAffiliateInternetName
		if d.sc != nil && d.sc.Target != nil && d.sc.Target.Matches(name, false, true) {
			eventType = domain.EventInternetName
		}
		if err := emit(eventType, name); err != nil {
			return err
		}
	}
	return nil
}

func (d *DNSResolve) lookupAddr(ctx context.Context, ip string) ([]string, error) {
	lctx, cancel := d.withTimeout(ctx)
	defer cancel()

	raw, err := d.resolver.LookupAddr(lctx, ip)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isNotFound(err) {
			d.logger.Debug("reverse lookup failed", "ip", ip, "error", err)
		}
		return nil, nil
	}

	var names []string
	seen := make(map[string]bool, len(raw))
	for _, n := range raw {
		n = strings.ToLower(strings.TrimSuffix(n, "."))
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names, nil
}

// netblock reverse-resolves every address of a small enough owned netblock
func (d *DNSResolve) netblock(ctx context.Context, cidr string, emit module.Notify) error {
	prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
	if err != nil {
		d.logger.Debug("not a netblock", "data", cidr, "error", err)
		return nil
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() || prefix.Bits() < d.maxNetblock {
		d.logger.Debug("netblock too large to resolve", "netblock", prefix, "max", d.maxNetblock)
		return nil
	}

	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		if module.CheckForStop(ctx) {
			return ctx.Err()
		}
		ip := addr.String()
		names, err := d.lookupAddr(ctx, ip)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			continue
		}
		if err := emit(domain.EventIPAddress, ip); err != nil {
			return err
		}
		for _, name := range names {
			if d.sc != nil && d.sc.Target != nil && d.sc.Target.Matches(name, false, true) {
				if err := emit(domain.EventInternetName, name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
