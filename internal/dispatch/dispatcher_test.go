package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"footprint/internal/domain"
	"footprint/internal/module"
)

type handlerFunc func(ctx context.Context, evt *domain.Event, emit module.Notify) error

type testModule struct {
	desc   module.Descriptor
	handle handlerFunc

	mu   sync.Mutex
	seen []string
}

func newTestModule(name string, watched, produced []string, handle handlerFunc) *testModule {
	return &testModule{
		desc:   module.Descriptor{Name: name, Watched: watched, Produced: produced},
		handle: handle,
	}
}

func (m *testModule) Name() string                 { return m.desc.Name }
func (m *testModule) Descriptor() module.Descriptor { return m.desc }
func (m *testModule) Configure(*module.ScanContext, module.Options) error {
	return nil
}

func (m *testModule) HandleEvent(ctx context.Context, evt *domain.Event, emit module.Notify) error {
	m.mu.Lock()
	m.seen = append(m.seen, evt.Data())
	m.mu.Unlock()
	if m.handle == nil {
		return nil
	}
	return m.handle(ctx, evt, emit)
}

func (m *testModule) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seen...)
}

type collector struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (c *collector) Published(evt *domain.Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *collector) ofType(eventType string) []*domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*domain.Event
	for _, e := range c.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func emitAll(eventType string, data ...string) handlerFunc {
	return func(ctx context.Context, evt *domain.Event, emit module.Notify) error {
		for _, d := range data {
			if err := emit(eventType, d); err != nil {
				return err
			}
		}
		return nil
	}
}

func newScan(t *testing.T, value string, typ domain.TargetType) (*domain.Target, *domain.Event) {
	t.Helper()
	target, err := domain.NewTarget(value, typ)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	return target, domain.NewRootEvent(target)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestEmailFromDomain(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	finder := newTestModule("emailfinder",
		[]string{domain.EventInternetName}, []string{domain.EventEmailAddress},
		emitAll(domain.EventEmailAddress, "admin@example.com"))

	sink := &collector{}
	d := New(target, []module.Module{finder}, WithSink(sink), WithLogger(quietLogger()))

	stats, err := d.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	emails := sink.ofType(domain.EventEmailAddress)
	if len(emails) != 1 {
		t.Fatalf("expected 1 EMAILADDR event, got %d", len(emails))
	}
	e := emails[0]
	if e.Data() != "admin@example.com" || e.Module() != "emailfinder" {
		t.Errorf("event = %s/%s from %s", e.Type(), e.Data(), e.Module())
	}
	if e.Source() != root {
		t.Error("EMAILADDR source should be the root event")
	}
	if stats.Published != 2 || stats.Stopped {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDuplicateDataHandledOnce(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	resolver := newTestModule("resolver",
		[]string{domain.EventInternetName}, []string{domain.EventIPAddress},
		emitAll(domain.EventIPAddress, "192.0.2.1", "192.0.2.1", "192.0.2.1"))
	scanner := newTestModule("scanner", []string{domain.EventIPAddress}, nil, nil)

	sink := &collector{}
	d := New(target, []module.Module{resolver, scanner}, WithSink(sink), WithLogger(quietLogger()))
	stats, err := d.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if got := scanner.received(); len(got) != 1 {
		t.Errorf("scanner handled %v, want exactly one delivery", got)
	}
	if got := len(sink.ofType(domain.EventIPAddress)); got != 3 {
		t.Errorf("all emitted events are still published, got %d", got)
	}
	if stats.Deduplicated != 2 {
		t.Errorf("Deduplicated = %d, want 2", stats.Deduplicated)
	}
}

func TestModuleNeverReceivesOwnOutput(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	crawler := newTestModule("crawler",
		[]string{domain.EventInternetName}, []string{domain.EventInternetName},
		func(ctx context.Context, evt *domain.Event, emit module.Notify) error {
			if evt.IsRoot() {
				return emit(domain.EventInternetName, "www.example.com")
			}
			return nil
		})
	observer := newTestModule("observer", []string{domain.EventInternetName}, nil, nil)

	d := New(target, []module.Module{crawler, observer}, WithLogger(quietLogger()))
	stats, err := d.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if got := crawler.received(); !reflect.DeepEqual(got, []string{"example.com"}) {
		t.Errorf("crawler received %v", got)
	}
	got := observer.received()
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"example.com", "www.example.com"}) {
		t.Errorf("observer received %v", got)
	}
	if stats.SuppressedSelf != 1 {
		t.Errorf("SuppressedSelf = %d, want 1", stats.SuppressedSelf)
	}
}

func TestStopFlagHaltsDelivery(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var emitErr error
	first := newTestModule("first",
		[]string{domain.EventInternetName}, []string{domain.EventIPAddress},
		func(ctx context.Context, evt *domain.Event, emit module.Notify) error {
			if err := emit(domain.EventIPAddress, "192.0.2.1"); err != nil {
				return err
			}
			cancel()
			emitErr = emit(domain.EventIPAddress, "192.0.2.2")
			return nil
		})
	second := newTestModule("second", []string{domain.EventIPAddress}, nil, nil)

	sink := &collector{}
	d := New(target, []module.Module{first, second}, WithSink(sink), WithLogger(quietLogger()))
	stats, err := d.Run(ctx, root)
	if err != nil {
		t.Fatalf("stopping must not raise, got %v", err)
	}

	if !errors.Is(emitErr, context.Canceled) {
		t.Errorf("emit after stop = %v, want context.Canceled", emitErr)
	}
	if got := sink.ofType(domain.EventIPAddress); len(got) != 1 {
		t.Errorf("events produced before stop must be kept, got %d", len(got))
	}
	if !stats.Stopped {
		t.Error("expected Stats.Stopped")
	}
	if len(second.received()) > 1 {
		t.Errorf("second received %v after stop", second.received())
	}
}

func TestErroredModuleIsIsolated(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	producer := newTestModule("producer",
		[]string{domain.EventInternetName}, []string{domain.EventInternetName},
		emitAll(domain.EventInternetName, "a.example.com", "b.example.com"))
	bad := newTestModule("bad", []string{domain.EventInternetName}, nil,
		func(context.Context, *domain.Event, module.Notify) error {
			return fmt.Errorf("api key rejected: %w", module.ErrAuthentication)
		})
	good := newTestModule("good", []string{domain.EventInternetName}, nil, nil)

	d := New(target, []module.Module{producer, bad, good}, WithLogger(quietLogger()))
	stats, err := d.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}

	if got := bad.received(); len(got) != 1 {
		t.Errorf("errored module should see only its first event, got %v", got)
	}
	if got := good.received(); len(got) != 3 {
		t.Errorf("healthy module should see all events, got %v", got)
	}
	snap, ok := d.State("bad")
	if !ok || !snap.Errored {
		t.Errorf("State(bad) = %+v", snap)
	}
	if stats.SuppressedError != 2 {
		t.Errorf("SuppressedError = %d, want 2", stats.SuppressedError)
	}
}

func TestUpstreamFailuresDisableAtThreshold(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	producer := newTestModule("producer",
		[]string{domain.EventInternetName}, []string{domain.EventInternetName},
		emitAll(domain.EventInternetName, "a.example.com", "b.example.com", "c.example.com"))
	flaky := newTestModule("flaky", []string{domain.EventInternetName}, nil,
		func(context.Context, *domain.Event, module.Notify) error {
			return &module.UpstreamError{Module: "flaky", Source: "https://api.example", Status: 502}
		})

	d := New(target, []module.Module{producer, flaky}, WithLogger(quietLogger()), WithMaxFailures(2))
	if _, err := d.Run(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	if got := flaky.received(); len(got) != 2 {
		t.Errorf("flaky handled %v, want 2 attempts before disable", got)
	}
	snap, _ := d.State("flaky")
	if !snap.Errored || snap.Failures != 2 {
		t.Errorf("State(flaky) = %+v", snap)
	}
}

func TestPanickingModuleIsDisabled(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	boom := newTestModule("boom", []string{domain.EventInternetName}, nil,
		func(context.Context, *domain.Event, module.Notify) error { panic("nil map") })
	other := newTestModule("other", []string{domain.EventInternetName}, nil, nil)

	d := New(target, []module.Module{boom, other}, WithLogger(quietLogger()))
	stats, err := d.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if snap, _ := d.State("boom"); !snap.Errored {
		t.Error("panicking module should be errored")
	}
	if len(other.received()) != 1 || stats.Failures != 1 {
		t.Errorf("other=%v stats=%+v", other.received(), stats)
	}
}

func TestResolvedAddressBecomesAlias(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	resolver := newTestModule("resolver",
		[]string{domain.EventInternetName}, []string{domain.EventIPAddress},
		func(ctx context.Context, evt *domain.Event, emit module.Notify) error {
			if evt.Data() == "example.com" {
				return emit(domain.EventIPAddress, "192.0.2.10")
			}
			return emit(domain.EventIPAddress, "198.51.100.7")
		})
	producer := newTestModule("producer",
		[]string{domain.EventInternetName}, []string{domain.EventAffiliateInternetName},
		emitAll(domain.EventInternetName, "unrelated.org"))

	d := New(target, []module.Module{resolver, producer}, WithLogger(quietLogger()))
	if _, err := d.Run(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	if !target.Matches("192.0.2.10", false, false) {
		t.Error("address resolved from the target name should be an alias")
	}
	if target.Matches("198.51.100.7", false, false) {
		t.Error("address resolved from an unrelated name must not become an alias")
	}
}

func TestDeliveryOrderIsFIFO(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	want := []string{"a.example.com", "b.example.com", "c.example.com", "d.example.com"}
	producer := newTestModule("producer",
		[]string{domain.EventInternetName}, []string{domain.EventInternetName},
		emitAll(domain.EventInternetName, want...))
	consumer := newTestModule("consumer", []string{domain.EventInternetName}, nil, nil)

	d := New(target, []module.Module{producer, consumer}, WithLogger(quietLogger()))
	if _, err := d.Run(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	// the root may interleave with the producer's output; only the
	// producer's own sequence is ordered
	var got []string
	for _, d := range consumer.received() {
		if d != "example.com" {
			got = append(got, d)
		}
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestWildcardSubscriber(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	resolver := newTestModule("resolver",
		[]string{domain.EventInternetName}, []string{domain.EventIPAddress},
		emitAll(domain.EventIPAddress, "192.0.2.1"))
	all := newTestModule("all", []string{module.Wildcard, domain.EventIPAddress}, nil, nil)

	d := New(target, []module.Module{resolver, all}, WithLogger(quietLogger()))
	if got := d.Subscribers(domain.EventIPAddress); !reflect.DeepEqual(got, []string{"all"}) {
		t.Errorf("Subscribers(IP_ADDRESS) = %v", got)
	}
	if _, err := d.Run(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if got := all.received(); len(got) != 2 {
		t.Errorf("wildcard module received %v, want root and address once each", got)
	}
}

func TestRunIsSingleUse(t *testing.T) {
	target, root := newScan(t, "example.com", domain.TargetInternetName)
	d := New(target, nil, WithLogger(quietLogger()))

	if _, err := d.Run(context.Background(), root); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Run(context.Background(), root); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run = %v, want ErrAlreadyRun", err)
	}
}
