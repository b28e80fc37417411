package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"footprint/internal/domain"
	"footprint/internal/module"
)

// DefaultMaxFailures is how many upstream failures disable a module. Modules
// already retry once through module.Retry before reporting a failure.
const DefaultMaxFailures = 1

// ErrAlreadyRun is returned when Run is called twice on one dispatcher
var ErrAlreadyRun = errors.New("dispatcher already used for a scan")

// Sink observes every published event, e.g. to persist or stream it.
// Sinks are called from many worker goroutines and must be safe for
// concurrent use.
type Sink interface {
	Published(evt *domain.Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(evt *domain.Event)

// Published implements Sink
func (f SinkFunc) Published(evt *domain.Event) { f(evt) }

// Stats summarizes one dispatcher run
type Stats struct {
	Published       int64 `json:"published"`
	Delivered       int64 `json:"delivered"`
	Deduplicated    int64 `json:"deduplicated"`
	SuppressedSelf  int64 `json:"suppressed_self"`
	SuppressedError int64 `json:"suppressed_error"`
	Failures        int64 `json:"failures"`
	Stopped         bool  `json:"stopped"`
}

type counters struct {
	published, delivered, deduplicated   atomic.Int64
	suppressedSelf, suppressedErr, fails atomic.Int64
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger used for dispatch and module diagnostics
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithSink adds an observer of published events
func WithSink(s Sink) Option {
	return func(d *Dispatcher) { d.sinks = append(d.sinks, s) }
}

// WithMaxFailures sets how many upstream failures disable a module
func WithMaxFailures(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxFailures = n
		}
	}
}

// Dispatcher routes events to the modules that watch their type.
//
// The subscription table is built once in New and never changes, so routing
// takes no locks. Every module gets its own worker goroutine and FIFO inbox;
// the worker is the only writer of that module's State.
type Dispatcher struct {
	target      *domain.Target
	logger      *log.Logger
	sinks       []Sink
	maxFailures int

	workers  []*worker
	byName   map[string]*worker
	subs     map[string][]*worker
	wildcard []*worker

	inflight *inflight
	ctx      context.Context
	running  atomic.Bool
	used     atomic.Bool
	stats    counters
}

// New builds a dispatcher for one scan over the given modules
func New(target *domain.Target, modules []module.Module, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		target:      target,
		logger:      log.Default(),
		maxFailures: DefaultMaxFailures,
		byName:      make(map[string]*worker, len(modules)),
		subs:        make(map[string][]*worker),
		inflight:    newInflight(),
		ctx:         context.Background(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, m := range modules {
		desc := m.Descriptor()
		w := newWorker(m, module.NewState(desc))
		d.workers = append(d.workers, w)
		d.byName[w.name] = w

		if containsWildcard(desc.Watched) {
			d.wildcard = append(d.wildcard, w)
			continue
		}
		for _, et := range uniq(desc.Watched) {
			d.subs[et] = append(d.subs[et], w)
		}
	}
	return d
}

// Subscribers returns the names of modules that would receive eventType,
// before self-loop suppression
func (d *Dispatcher) Subscribers(eventType string) []string {
	var names []string
	for _, w := range d.subs[eventType] {
		names = append(names, w.name)
	}
	for _, w := range d.wildcard {
		names = append(names, w.name)
	}
	sort.Strings(names)
	return names
}

// Run publishes root and blocks until no deliveries are queued or in flight.
// Cancelling ctx is the scan's stop flag: queued deliveries are dropped
// without error and events already produced are kept.
func (d *Dispatcher) Run(ctx context.Context, root *domain.Event) (Stats, error) {
	if !d.used.CompareAndSwap(false, true) {
		return Stats{}, ErrAlreadyRun
	}
	if root == nil {
		return Stats{}, fmt.Errorf("dispatch: %w", domain.ErrMissingSource)
	}

	d.ctx = ctx
	d.running.Store(true)

	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			d.work(ctx, w)
		}(w)
	}

	d.logger.Info("scan dispatch started", "target", d.target.Value(), "modules", len(d.workers))
	d.Publish(root)

	<-d.inflight.idle()
	d.running.Store(false)

	for _, w := range d.workers {
		w.close()
	}
	wg.Wait()

	stats := d.Stats()
	stats.Stopped = ctx.Err() != nil
	d.logger.Info("scan dispatch finished",
		"published", stats.Published, "delivered", stats.Delivered, "stopped", stats.Stopped)
	return stats, nil
}

// Publish hands evt to every sink and queues it for each interested module.
// A module never receives its own output.
func (d *Dispatcher) Publish(evt *domain.Event) {
	if evt == nil || !d.running.Load() {
		return
	}

	d.stats.published.Add(1)
	d.updateAliases(evt)
	for _, s := range d.sinks {
		s.Published(evt)
	}

	if module.CheckForStop(d.ctx) {
		return
	}

	d.route(evt, d.subs[evt.Type()])
	d.route(evt, d.wildcard)
}

func (d *Dispatcher) route(evt *domain.Event, subscribers []*worker) {
	for _, w := range subscribers {
		if w.name == evt.Module() {
			d.stats.suppressedSelf.Add(1)
			continue
		}
		d.inflight.add()
		w.enqueue(evt)
	}
}

// updateAliases records equivalence-bearing events on the target: addresses
// resolved from a target hostname, and hostnames resolved from a target address.
func (d *Dispatcher) updateAliases(evt *domain.Event) {
	src := evt.Source()
	if src == nil {
		return
	}

	switch evt.Type() {
	case domain.EventIPAddress, domain.EventIPv6Address:
		if src.Type() == domain.EventInternetName && d.target.Matches(src.Data(), false, false) {
			if d.target.SetAlias(evt.Data(), domain.TargetType(evt.Type())) {
				d.logger.Debug("target alias added", "alias", evt.Data(), "type", evt.Type())
			}
		}
	case domain.EventInternetName:
		isAddr := src.Type() == domain.EventIPAddress || src.Type() == domain.EventIPv6Address
		ownAddr := d.target.Type() == domain.TargetIPAddress || d.target.Type() == domain.TargetIPv6Address
		if isAddr && ownAddr && d.target.Matches(src.Data(), false, false) {
			if d.target.SetAlias(evt.Data(), domain.TargetInternetName) {
				d.logger.Debug("target alias added", "alias", evt.Data(), "type", evt.Type())
			}
		}
	}
}

// work drains one module's inbox until the dispatcher closes it
func (d *Dispatcher) work(ctx context.Context, w *worker) {
	for {
		evt, ok := w.next()
		if !ok {
			return
		}
		d.deliver(ctx, w, evt)
		d.inflight.done()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, w *worker, evt *domain.Event) {
	if module.CheckForStop(ctx) {
		return
	}
	if w.state.Errored() {
		d.stats.suppressedErr.Add(1)
		return
	}
	if !w.state.FirstSight(evt.Data()) {
		d.stats.deduplicated.Add(1)
		return
	}

	emit := func(eventType, data string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		child, err := domain.NewEvent(eventType, data, w.name, evt)
		if err != nil {
			return err
		}
		d.Publish(child)
		return nil
	}

	d.stats.delivered.Add(1)
	err := d.invoke(ctx, w, evt, emit)
	w.state.RecordHandled()
	if err != nil {
		d.handleFailure(w, evt, err)
	}
}

// invoke calls HandleEvent, converting a panic into an error
func (d *Dispatcher) invoke(ctx context.Context, w *worker, evt *domain.Event, emit module.Notify) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return w.mod.HandleEvent(ctx, evt, emit)
}

func (d *Dispatcher) handleFailure(w *worker, evt *domain.Event, err error) {
	logger := d.logger.With("module", w.name, "event", evt.Type())

	var pe *panicError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case errors.As(err, &pe):
		d.stats.fails.Add(1)
		w.state.SetErrored(err.Error())
		logger.Error("module panicked, disabled for scan", "error", err)
	case errors.Is(err, module.ErrAuthentication):
		d.stats.fails.Add(1)
		w.state.SetErrored(err.Error())
		logger.Error("authentication rejected, module disabled for scan", "error", err)
	case errors.Is(err, module.ErrUpstreamFetch):
		d.stats.fails.Add(1)
		if n := w.state.RecordFailure(); n >= d.maxFailures {
			w.state.SetErrored(err.Error())
			logger.Warn("upstream failing, module disabled for scan", "failures", n, "error", err)
		} else {
			logger.Warn("upstream fetch failed", "failures", n, "error", err)
		}
	default:
		d.stats.fails.Add(1)
		w.state.RecordFailure()
		logger.Error("module failed to handle event", "data", evt.Data(), "error", err)
	}
}

// Stats returns the counters collected so far
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Published:       d.stats.published.Load(),
		Delivered:       d.stats.delivered.Load(),
		Deduplicated:    d.stats.deduplicated.Load(),
		SuppressedSelf:  d.stats.suppressedSelf.Load(),
		SuppressedError: d.stats.suppressedErr.Load(),
		Failures:        d.stats.fails.Load(),
	}
}

// State returns a snapshot of one module's per-scan state
func (d *Dispatcher) State(name string) (module.StateSnapshot, bool) {
	w, ok := d.byName[name]
	if !ok {
		return module.StateSnapshot{}, false
	}
	return w.state.Snapshot(), true
}

// States returns snapshots for every module, sorted by name
func (d *Dispatcher) States() []module.StateSnapshot {
	out := make([]module.StateSnapshot, 0, len(d.workers))
	for _, w := range d.workers {
		out = append(out, w.state.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func containsWildcard(list []string) bool {
	for _, v := range list {
		if v == module.Wildcard {
			return true
		}
	}
	return false
}

func uniq(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
