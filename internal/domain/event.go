package domain

import (
	"time"

	"github.com/google/uuid"
)

// Classification says what role an event plays in the provenance graph
type Classification string

const (
	// ClassEntity marks nameable real-world objects (domains, IPs, e-mails)
	ClassEntity Classification = "ENTITY"
	// ClassData marks supporting evidence that is not itself a graph node
	ClassData Classification = "DATA"
	// ClassInternal marks scan bookkeeping, including the root event
	ClassInternal Classification = "INTERNAL"
)

// Valid reports whether c is a known classification
func (c Classification) Valid() bool {
	switch c {
	case ClassEntity, ClassData, ClassInternal:
		return true
	}
	return false
}

// RootModule is the producing module recorded on the root event
const RootModule = "footprint"

// RootLabel is the parent label persisted for the root event
const RootLabel = "ROOT"

// Event is one discovered fact and the event that caused it.
//
// Fields are unexported so an Event cannot change after construction. Since
// the source pointer is fixed when the event is built and must already
// exist, following Source() links always ends at the root.
type Event struct {
	id             string
	eventType      string
	data           string
	module         string
	source         *Event
	classification Classification
	generated      time.Time
}

// NewRootEvent materializes the root of a scan from the target identity
func NewRootEvent(target *Target) *Event {
	return &Event{
		id:             uuid.NewString(),
		eventType:      string(target.Type()),
		data:           target.Value(),
		module:         RootModule,
		classification: ClassInternal,
		generated:      time.Now().UTC(),
	}
}

// NewEvent creates a non-root event caused by source
func NewEvent(eventType, data, module string, source *Event) (*Event, error) {
	if eventType == "" {
		return nil, ErrEmptyEventType
	}
	if source == nil {
		return nil, ErrMissingSource
	}
	return &Event{
		id:             uuid.NewString(),
		eventType:      eventType,
		data:           data,
		module:         module,
		source:         source,
		classification: ClassificationOf(eventType),
		generated:      time.Now().UTC(),
	}, nil
}

func (e *Event) ID() string                     { return e.id }
func (e *Event) Type() string                   { return e.eventType }
func (e *Event) Data() string                   { return e.data }
func (e *Event) Module() string                 { return e.module }
func (e *Event) Source() *Event                 { return e.source }
func (e *Event) Classification() Classification { return e.classification }
func (e *Event) Generated() time.Time           { return e.generated }

// IsRoot reports whether e is the root of its provenance tree
func (e *Event) IsRoot() bool {
	return e.source == nil
}

// Depth returns the number of hops from e to the root
func (e *Event) Depth() int {
	depth := 0
	for cur := e.source; cur != nil; cur = cur.source {
		depth++
	}
	return depth
}

// Lineage returns e followed by each ancestor up to and including the root
func (e *Event) Lineage() []*Event {
	var chain []*Event
	for cur := e; cur != nil; cur = cur.source {
		chain = append(chain, cur)
	}
	return chain
}

// SourceData returns the data of the source event, or RootLabel for the root
func (e *Event) SourceData() string {
	if e.source == nil {
		return RootLabel
	}
	return e.source.data
}

// SourceID returns the id of the source event, or "" for the root
func (e *Event) SourceID() string {
	if e.source == nil {
		return ""
	}
	return e.source.id
}
