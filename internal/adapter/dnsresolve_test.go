package adapter

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"

	"footprint/internal/domain"
	"footprint/internal/module"
)

type fakeResolver struct {
	hosts map[string][]string
	addrs map[string][]string
	fail  error
}

func (f *fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if a, ok := f.hosts[host]; ok {
		return a, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

func (f *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if n, ok := f.addrs[addr]; ok {
		return n, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: addr, IsNotFound: true}
}

func newTestDNSResolve(t *testing.T, target string, r Resolver, opts module.Options) *DNSResolve {
	t.Helper()
	d := &DNSResolve{resolver: r}
	if err := d.Configure(scanContext(t, target), opts); err != nil {
		t.Fatalf("Configure error: %v", err)
	}
	return d
}

func TestDNSResolveForward(t *testing.T) {
	r := &fakeResolver{
		hosts: map[string][]string{
			"www.example.com": {"192.0.2.10", "::ffff:192.0.2.10", "2001:db8::10", "not-an-ip"},
			"example.com":     {"192.0.2.1"},
		},
	}

	tests := []struct {
		name      string
		eventType string
		data      string
		want      []emitted
	}{
		{
			name:      "addresses are deduplicated and classified",
			eventType: domain.EventInternetName,
			data:      "www.example.com",
			want: []emitted{
				{domain.EventIPAddress, "192.0.2.10"},
				{domain.EventIPv6Address, "2001:db8::10"},
			},
		},
		{
			name:      "unresolved hostname",
			eventType: domain.EventInternetName,
			data:      "gone.example.com",
			want:      []emitted{{domain.EventInternetNameUnresolve, "gone.example.com"}},
		},
		{
			name:      "unresolved domain name emits nothing",
			eventType: domain.EventDomainName,
			data:      "gone.example.com",
		},
		{
			name:      "domain name",
			eventType: domain.EventDomainName,
			data:      "example.com",
			want:      []emitted{{domain.EventIPAddress, "192.0.2.1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDNSResolve(t, "example.com", r, nil)
			rec := &recorder{}
			if err := d.HandleEvent(context.Background(), event(t, d.sc, tt.eventType, tt.data), rec.emit); err != nil {
				t.Fatalf("HandleEvent error: %v", err)
			}
			if !reflect.DeepEqual(rec.events, tt.want) {
				t.Errorf("emitted %v, want %v", rec.events, tt.want)
			}
		})
	}
}

func TestDNSResolveTransientErrorIsNotFatal(t *testing.T) {
	r := &fakeResolver{fail: &net.DNSError{Err: "server misbehaving", Name: "www.example.com", IsTemporary: true}}
	d := newTestDNSResolve(t, "example.com", r, nil)

	rec := &recorder{}
	err := d.HandleEvent(context.Background(), event(t, d.sc, domain.EventInternetName, "www.example.com"), rec.emit)
	if err != nil {
		t.Errorf("transient DNS failure should not fail the module, got %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected nothing emitted, got %v", rec.events)
	}
}

func TestDNSResolveReverse(t *testing.T) {
	r := &fakeResolver{
		addrs: map[string][]string{
			"192.0.2.10": {"www.example.com.", "WWW.EXAMPLE.COM.", "host.other.net."},
		},
	}

	t.Run("names split by target", func(t *testing.T) {
		d := newTestDNSResolve(t, "example.com", r, nil)
		rec := &recorder{}
		if err := d.HandleEvent(context.Background(), event(t, d.sc, domain.EventIPAddress, "192.0.2.10"), rec.emit); err != nil {
			t.Fatal(err)
		}
		want := []emitted{
			{domain.EventInternetName, "www.example.com"},
			{domain.EventAffiliateInternetName, "host.other.net"},
		}
		if !reflect.DeepEqual(rec.events, want) {
			t.Errorf("emitted %v, want %v", rec.events, want)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		d := newTestDNSResolve(t, "example.com", r, module.Options{"reverse_lookup": false})
		rec := &recorder{}
		if err := d.HandleEvent(context.Background(), event(t, d.sc, domain.EventIPAddress, "192.0.2.10"), rec.emit); err != nil {
			t.Fatal(err)
		}
		if rec.count() != 0 {
			t.Errorf("expected nothing emitted, got %v", rec.events)
		}
	})
}

func TestDNSResolveNetblock(t *testing.T) {
	r := &fakeResolver{
		addrs: map[string][]string{
			"192.0.2.1": {"gw.example.com."},
			"192.0.2.2": {"unrelated.other.net."},
		},
	}

	t.Run("small netblock is walked", func(t *testing.T) {
		d := newTestDNSResolve(t, "example.com", r, nil)
		rec := &recorder{}
		if err := d.HandleEvent(context.Background(), event(t, d.sc, domain.EventNetblockOwner, "192.0.2.0/30"), rec.emit); err != nil {
			t.Fatal(err)
		}
		want := []emitted{
			{domain.EventIPAddress, "192.0.2.1"},
			{domain.EventInternetName, "gw.example.com"},
			{domain.EventIPAddress, "192.0.2.2"},
		}
		if !reflect.DeepEqual(rec.events, want) {
			t.Errorf("emitted %v, want %v", rec.events, want)
		}
	})

	t.Run("large netblock is skipped", func(t *testing.T) {
		d := newTestDNSResolve(t, "example.com", r, module.Options{"max_netblock": 31})
		rec := &recorder{}
		if err := d.HandleEvent(context.Background(), event(t, d.sc, domain.EventNetblockOwner, "192.0.2.0/30"), rec.emit); err != nil {
			t.Fatal(err)
		}
		if rec.count() != 0 {
			t.Errorf("expected nothing emitted, got %v", rec.events)
		}
	})

	t.Run("stop ends the walk", func(t *testing.T) {
		d := newTestDNSResolve(t, "example.com", r, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := d.HandleEvent(ctx, event(t, d.sc, domain.EventNetblockOwner, "192.0.2.0/30"), (&recorder{}).emit)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
