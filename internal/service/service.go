package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"footprint/internal/cache"
	"footprint/internal/codec"
	"footprint/internal/config"
	"footprint/internal/depgraph"
	"footprint/internal/dispatch"
	"footprint/internal/domain"
	"footprint/internal/module"
	"footprint/internal/provenance"
	"footprint/internal/repository"
)

var (
	// ErrScanNotRunning is returned by Stop and Wait for unknown or finished scans
	ErrScanNotRunning = errors.New("scan is not running")
	// ErrNoModules is returned when no module can take part in a scan
	ErrNoModules = errors.New("no modules selected for scan")
	// ErrUnknownModule is returned when a request names an unregistered module
	ErrUnknownModule = errors.New("unknown module")
)

// ScanRequest describes a scan to start
type ScanRequest struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	// Modules names the modules to run; empty selects every enabled module
	// that supports UseCase
	Modules []string `json:"modules,omitempty"`
	UseCase string   `json:"use_case,omitempty"`
	// Options overrides module options for this scan only
	Options map[string]module.Options `json:"options,omitempty"`
}

// Result is the outcome of a finished scan
type Result struct {
	Scan   *repository.Scan       `json:"scan"`
	Stats  dispatch.Stats         `json:"stats"`
	States []module.StateSnapshot `json:"modules"`
	Pruned []string               `json:"pruned,omitempty"`
}

type runningScan struct {
	scan   *repository.Scan
	pruned []string
	cancel context.CancelFunc
	disp   *dispatch.Dispatcher
	done   chan struct{}
	result *Result
	err    error
}

// Option configures a ScanService
type Option func(*ScanService)

// WithLogger sets the service logger
func WithLogger(l *log.Logger) Option {
	return func(s *ScanService) { s.logger = l }
}

// WithCache sets the upstream payload cache handed to modules
func WithCache(c *cache.Cache) Option {
	return func(s *ScanService) { s.cache = c }
}

// WithBehavior sets per-request timeout, retry backoff and failure tolerance
func WithBehavior(b config.BehaviorProfile) Option {
	return func(s *ScanService) { s.behavior = b }
}

// WithDefaultUseCase sets the use case applied when a request names none
func WithDefaultUseCase(uc string) Option {
	return func(s *ScanService) { s.useCase = uc }
}

// ScanService runs scans and serves their results
type ScanService struct {
	store    repository.EventStore
	registry *module.Registry
	eventBus *EventBus
	cache    *cache.Cache
	logger   *log.Logger

	settingsMu sync.RWMutex
	behavior   config.BehaviorProfile
	useCase    string

	mu      sync.Mutex
	running map[string]*runningScan
}

// NewScanService creates a new scan service
func NewScanService(store repository.EventStore, registry *module.Registry, eventBus *EventBus, opts ...Option) *ScanService {
	s := &ScanService{
		store:    store,
		registry: registry,
		eventBus: eventBus,
		logger:   log.Default(),
		behavior: config.PostureBalanced.GetProfile(),
		useCase:  module.UseCaseAll,
		running:  make(map[string]*runningScan),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.eventBus == nil {
		s.eventBus = NewEventBus()
	}
	return s
}

// Reconfigure replaces the posture and default use case for scans started
// from now on. Running scans keep the settings they started with.
func (s *ScanService) Reconfigure(behavior config.BehaviorProfile, useCase string) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	s.behavior = behavior
	if useCase != "" {
		s.useCase = useCase
	}
}

func (s *ScanService) settings() (config.BehaviorProfile, string) {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.behavior, s.useCase
}

// Start validates req, records the scan and runs it in the background.
// The scan outlives ctx; use Stop to end it early.
func (s *ScanService) Start(ctx context.Context, req ScanRequest) (*repository.Scan, error) {
	rs, err := s.start(ctx, req)
	if err != nil {
		return nil, err
	}
	scan := *rs.scan
	return &scan, nil
}

// Run starts a scan and waits for it. Cancelling ctx stops the scan.
func (s *ScanService) Run(ctx context.Context, req ScanRequest) (*Result, error) {
	rs, err := s.start(ctx, req)
	if err != nil {
		return nil, err
	}

	select {
	case <-rs.done:
	case <-ctx.Done():
		rs.cancel()
		<-rs.done
	}
	return rs.result, rs.err
}

func (s *ScanService) start(ctx context.Context, req ScanRequest) (*runningScan, error) {
	target, err := domain.ParseTarget(req.Target)
	if err != nil {
		return nil, err
	}

	behavior, useCase := s.settings()
	if req.UseCase != "" {
		useCase = req.UseCase
	}
	names, err := s.selectModules(req.Modules, useCase)
	if err != nil {
		return nil, err
	}

	kept, pruned := s.prune(names, target)
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: none of %v can reach a %s target", ErrNoModules, names, target.Type())
	}

	scan := &repository.Scan{
		ID:         uuid.NewString(),
		Name:       req.Name,
		Target:     target.Value(),
		TargetType: target.Type(),
		Status:     repository.ScanRunning,
		Modules:    kept,
		Started:    time.Now().UTC(),
	}
	if scan.Name == "" {
		scan.Name = target.Value()
	}
	logger := s.logger.With("scan", scan.ID)

	if err := s.store.CreateScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("create scan: %w", err)
	}

	mods, optsByModule := s.instantiate(scan, target, kept, req.Options, behavior, logger)
	if len(mods) == 0 {
		s.finish(scan, repository.ScanFailed, logger)
		return nil, fmt.Errorf("%w: every module failed setup", ErrNoModules)
	}

	if err := s.store.SaveScanConfig(ctx, scan.ID, s.flattenConfig(useCase, behavior, optsByModule)); err != nil {
		logger.Warn("failed to save scan config", "error", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	rs := &runningScan{
		scan:   scan,
		pruned: pruned,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	rs.disp = dispatch.New(target, mods,
		dispatch.WithLogger(logger),
		dispatch.WithMaxFailures(behavior.MaxFailures),
		dispatch.WithSink(s.persistSink(scan.ID, logger)),
		dispatch.WithSink(s.busSink(scan.ID)),
	)

	s.mu.Lock()
	s.running[scan.ID] = rs
	s.mu.Unlock()

	started := *scan
	s.eventBus.Publish(Event{Type: EventScanStarted, ScanID: scan.ID, Payload: &started})
	logger.Info("scan started", "target", scan.Target, "type", scan.TargetType, "modules", len(mods), "pruned", len(pruned))

	go s.run(runCtx, rs, domain.NewRootEvent(target), logger)
	return rs, nil
}

func (s *ScanService) run(ctx context.Context, rs *runningScan, root *domain.Event, logger *log.Logger) {
	defer close(rs.done)
	defer rs.cancel()

	stats, err := rs.disp.Run(ctx, root)

	status := repository.ScanFinished
	switch {
	case err != nil:
		status = repository.ScanFailed
		logger.Error("scan failed", "error", err)
	case stats.Stopped:
		status = repository.ScanAborted
	}
	s.finish(rs.scan, status, logger)

	rs.result = &Result{Scan: rs.scan, Stats: stats, States: rs.disp.States(), Pruned: rs.pruned}
	rs.err = err

	s.mu.Lock()
	delete(s.running, rs.scan.ID)
	s.mu.Unlock()

	s.eventBus.Publish(Event{Type: EventScanFinished, ScanID: rs.scan.ID, Payload: rs.result})
	logger.Info("scan finished", "status", status, "events", stats.Published)
}

func (s *ScanService) finish(scan *repository.Scan, status repository.ScanStatus, logger *log.Logger) {
	ended := time.Now().UTC()
	scan.Status = status
	scan.Ended = &ended
	if err := s.store.FinishScan(context.Background(), scan.ID, status, ended); err != nil {
		logger.Error("failed to record scan end", "error", err)
	}
}

// selectModules resolves the requested module names, or every enabled module
// supporting useCase
func (s *ScanService) selectModules(requested []string, useCase string) ([]string, error) {
	if len(requested) > 0 {
		for _, name := range requested {
			if _, _, ok := s.registry.Get(name); !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
			}
		}
		return requested, nil
	}

	var names []string
	for _, info := range s.registry.List() {
		if info.Enabled && info.SupportsUseCase(useCase) {
			names = append(names, info.Name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: use case %q", ErrNoModules, useCase)
	}
	return names, nil
}

// prune drops modules the target's event type can never reach
func (s *ScanService) prune(names []string, target *domain.Target) (kept, pruned []string) {
	descs := make([]module.Descriptor, 0, len(names))
	for _, name := range names {
		d, _, _ := s.registry.Get(name)
		descs = append(descs, d)
	}

	closure := depgraph.New(descs).Reachable([]string{string(target.Type())})
	for _, name := range names {
		if closure.HasModule(name) {
			kept = append(kept, name)
		} else {
			pruned = append(pruned, name)
		}
	}
	sort.Strings(kept)
	sort.Strings(pruned)
	return kept, pruned
}

// instantiate creates and configures fresh module instances. A module whose
// setup fails is left out of the scan.
func (s *ScanService) instantiate(scan *repository.Scan, target *domain.Target, names []string, overrides map[string]module.Options, behavior config.BehaviorProfile, logger *log.Logger) ([]module.Module, map[string]module.Options) {
	instances, err := s.registry.Select(names)
	if err != nil {
		logger.Error("failed to create modules", "error", err)
		return nil, nil
	}

	mods := make([]module.Module, 0, len(instances))
	used := make(map[string]module.Options, len(instances))
	for _, m := range instances {
		_, cfg, _ := s.registry.Get(m.Name())
		opts := cfg.Options.Merge(overrides[m.Name()])

		sc := &module.ScanContext{
			ScanID:  scan.ID,
			Target:  target,
			Cache:   s.cache,
			Logger:  logger.With("module", m.Name()),
			Timeout: behavior.Timeout,
			Backoff: behavior.Backoff,
		}
		if err := m.Configure(sc, opts); err != nil {
			logger.Error("module setup failed, skipping", "module", m.Name(), "error", err)
			continue
		}
		mods = append(mods, m)
		used[m.Name()] = opts
	}
	return mods, used
}

func (s *ScanService) flattenConfig(useCase string, behavior config.BehaviorProfile, opts map[string]module.Options) map[string]string {
	global := map[string]any{
		"_usecase":     useCase,
		"_timeout":     behavior.Timeout,
		"_backoff":     behavior.Backoff,
		"_maxfailures": behavior.MaxFailures,
	}
	modules := make(map[string]map[string]any, len(opts))
	for name, o := range opts {
		modules[name] = o
	}
	return config.Serialize(global, modules, false)
}

func (s *ScanService) persistSink(scanID string, logger *log.Logger) dispatch.Sink {
	return dispatch.SinkFunc(func(evt *domain.Event) {
		// stored even after a stop so nothing produced is lost
		if err := s.store.SaveEvent(context.Background(), repository.RecordFromEvent(scanID, evt)); err != nil {
			logger.Error("failed to store event", "event", evt.Type(), "error", err)
		}
	})
}

func (s *ScanService) busSink(scanID string) dispatch.Sink {
	return dispatch.SinkFunc(func(evt *domain.Event) {
		s.eventBus.Publish(Event{
			Type:    EventScanEvent,
			ScanID:  scanID,
			Payload: repository.RecordFromEvent(scanID, evt),
		})
	})
}

// Stop asks a running scan to stop. Queued deliveries are dropped.
func (s *ScanService) Stop(scanID string) error {
	s.mu.Lock()
	rs, ok := s.running[scanID]
	s.mu.Unlock()
	if !ok {
		return ErrScanNotRunning
	}
	rs.cancel()
	s.logger.Info("scan stop requested", "scan", scanID)
	return nil
}

// Wait blocks until a running scan finishes and returns its result
func (s *ScanService) Wait(scanID string) (*Result, error) {
	s.mu.Lock()
	rs, ok := s.running[scanID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrScanNotRunning
	}
	<-rs.done
	return rs.result, rs.err
}

// Running reports whether scanID is still in progress
func (s *ScanService) Running(scanID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[scanID]
	return ok
}

// ModuleStates returns live module state for a running scan
func (s *ScanService) ModuleStates(scanID string) ([]module.StateSnapshot, bool) {
	s.mu.Lock()
	rs, ok := s.running[scanID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return rs.disp.States(), true
}

// Get returns a stored scan
func (s *ScanService) Get(ctx context.Context, scanID string) (*repository.Scan, error) {
	return s.store.GetScan(ctx, scanID)
}

// List returns every stored scan, newest first
func (s *ScanService) List(ctx context.Context) ([]*repository.Scan, error) {
	return s.store.ListScans(ctx)
}

// Events returns the stored events of a scan
func (s *ScanService) Events(ctx context.Context, scanID string, filter repository.EventFilter) ([]repository.EventRecord, error) {
	if _, err := s.store.GetScan(ctx, scanID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, scanID, filter)
}

// ScanConfig returns the flattened options a scan ran with
func (s *ScanService) ScanConfig(ctx context.Context, scanID string) (map[string]string, error) {
	if _, err := s.store.GetScan(ctx, scanID); err != nil {
		return nil, err
	}
	return s.store.GetScanConfig(ctx, scanID)
}

// Delete stops the scan if it is running, then removes it and its events
func (s *ScanService) Delete(ctx context.Context, scanID string) error {
	if err := s.Stop(scanID); err == nil {
		if _, err := s.Wait(scanID); err != nil && !errors.Is(err, ErrScanNotRunning) {
			s.logger.Warn("scan ended with error before delete", "scan", scanID, "error", err)
		}
	}
	if err := s.store.DeleteScan(ctx, scanID); err != nil {
		return err
	}
	s.eventBus.Publish(Event{Type: EventScanDeleted, ScanID: scanID})
	return nil
}

// Provenance builds the entity graph of a scan. filter limits which entity
// types appear; empty keeps all.
func (s *ScanService) Provenance(ctx context.Context, scanID string, filter []string) (*domain.ProvenanceGraph, *provenance.Result, error) {
	scan, err := s.store.GetScan(ctx, scanID)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.store.ProvenanceRows(ctx, scanID)
	if err != nil {
		return nil, nil, fmt.Errorf("load events: %w", err)
	}

	res := provenance.BuildEdges(rows, filter)
	if res.Skipped > 0 || res.Cycles > 0 {
		s.logger.Warn("provenance built with anomalies", "scan", scanID, "skipped", res.Skipped, "cycles", res.Cycles)
	}
	return res.Graph([]string{scan.Target}), res, nil
}

// Graph exports a scan's entity graph to w in the named format
func (s *ScanService) Graph(ctx context.Context, scanID, format string, filter []string, w io.Writer) error {
	exp, err := codec.Lookup(format)
	if err != nil {
		return err
	}
	g, _, err := s.Provenance(ctx, scanID, filter)
	if err != nil {
		return err
	}
	return exp.Export(g, w)
}

// Tree returns the raw event tree of a scan, including data events
func (s *ScanService) Tree(ctx context.Context, scanID string) (*provenance.TreeNode, error) {
	if _, err := s.store.GetScan(ctx, scanID); err != nil {
		return nil, err
	}
	rows, err := s.store.ProvenanceRows(ctx, scanID)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	return provenance.BuildTree(provenance.Children(rows)), nil
}
