package module

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"footprint/internal/cache"
	"footprint/internal/domain"
)

// Wildcard in a watched or produced list matches every event type
const Wildcard = "*"

// Scan use cases
const (
	UseCaseAll         = "all"
	UseCaseFootprint   = "footprint"
	UseCaseInvestigate = "investigate"
	UseCasePassive     = "passive"
)

// DedupMode selects the key a module's dedup filter remembers
type DedupMode string

const (
	// DedupData remembers raw event data (the default)
	DedupData DedupMode = "data"
	// DedupDigest remembers a SHA-256 digest of event data, for large payloads
	DedupDigest DedupMode = "digest"
)

// Descriptor is the static declaration of a module's inputs and outputs
type Descriptor struct {
	Name     string    `json:"name" yaml:"name"`
	Summary  string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Watched  []string  `json:"watched" yaml:"watched"`
	Produced []string  `json:"produced" yaml:"produced"`
	Dedup    DedupMode `json:"dedup,omitempty" yaml:"dedup,omitempty"`
	// UseCases lists the scan use cases the module takes part in
	UseCases []string `json:"use_cases,omitempty" yaml:"use_cases,omitempty"`
}

// Watches reports whether the module wants events of eventType
func (d Descriptor) Watches(eventType string) bool {
	for _, w := range d.Watched {
		if w == Wildcard || w == eventType {
			return true
		}
	}
	return false
}

// SupportsUseCase reports whether the module takes part in useCase. The
// "all" use case includes every module.
func (d Descriptor) SupportsUseCase(useCase string) bool {
	if useCase == "" || strings.EqualFold(useCase, UseCaseAll) {
		return true
	}
	for _, uc := range d.UseCases {
		if strings.EqualFold(uc, useCase) {
			return true
		}
	}
	return false
}

// Produces reports whether the module may emit events of eventType
func (d Descriptor) Produces(eventType string) bool {
	for _, p := range d.Produced {
		if p == Wildcard || p == eventType {
			return true
		}
	}
	return false
}

// ScanContext is the shared, read-mostly context a module receives at setup
type ScanContext struct {
	ScanID string
	Target *domain.Target
	Cache  *cache.Cache
	Logger *log.Logger
	// Timeout bounds each outbound request
	Timeout time.Duration
	// Backoff is the pause before the single retry of a failed fetch
	Backoff time.Duration
}

// Notify emits a new event caused by the event currently being handled.
// The dispatcher stamps the producing module and the source event.
type Notify func(eventType, data string) error

// Module is the contract every scan module implements
type Module interface {
	// Name returns the unique identifier for this module
	Name() string

	// Descriptor declares watched and produced event types
	Descriptor() Descriptor

	// Configure prepares the module for one scan. It must reset any state
	// left over from a previous scan.
	Configure(sc *ScanContext, opts Options) error

	// HandleEvent processes one delivered event. Implementations check
	// CheckForStop at each loop boundary and report upstream failures as
	// errors wrapping ErrUpstreamFetch or ErrAuthentication.
	HandleEvent(ctx context.Context, evt *domain.Event, emit Notify) error
}

// CheckForStop reports whether the scan has been asked to stop
func CheckForStop(ctx context.Context) bool {
	return ctx.Err() != nil
}
