package dispatch

import (
	"sync"

	"footprint/internal/domain"
	"footprint/internal/module"
)

// worker owns one module's inbox. The inbox is unbounded so a module
// emitting events never blocks on a slower subscriber.
type worker struct {
	mod   module.Module
	name  string
	state *module.State

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*domain.Event
	closed bool
}

func newWorker(m module.Module, state *module.State) *worker {
	w := &worker{mod: m, name: m.Name(), state: state}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *worker) enqueue(evt *domain.Event) {
	w.mu.Lock()
	w.queue = append(w.queue, evt)
	w.mu.Unlock()
	w.cond.Signal()
}

// next blocks until an event is queued or the worker is closed
func (w *worker) next() (*domain.Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.queue) == 0 && !w.closed {
		w.cond.Wait()
	}
	if len(w.queue) == 0 {
		return nil, false
	}
	evt := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	return evt, true
}

func (w *worker) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// inflight counts queued plus in-progress deliveries. idle returns a channel
// that is closed whenever the count is zero.
type inflight struct {
	mu   sync.Mutex
	n    int
	zero chan struct{}
}

func newInflight() *inflight {
	ch := make(chan struct{})
	close(ch)
	return &inflight{zero: ch}
}

func (f *inflight) add() {
	f.mu.Lock()
	if f.n == 0 {
		f.zero = make(chan struct{})
	}
	f.n++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.n--
	if f.n == 0 {
		close(f.zero)
	}
	f.mu.Unlock()
}

func (f *inflight) idle() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.zero
}
