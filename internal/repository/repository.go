package repository

import (
	"context"
	"errors"
	"time"

	"footprint/internal/domain"
	"footprint/internal/provenance"
)

// ErrNotFound is returned when a scan does not exist
var ErrNotFound = errors.New("not found")

// ScanStatus is the lifecycle state of a scan
type ScanStatus string

const (
	ScanRunning  ScanStatus = "RUNNING"
	ScanFinished ScanStatus = "FINISHED"
	ScanAborted  ScanStatus = "ABORTED"
	ScanFailed   ScanStatus = "FAILED"
)

// Scan is the stored record of one scan
type Scan struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Target     string            `json:"target" yaml:"target"`
	TargetType domain.TargetType `json:"target_type" yaml:"target_type"`
	Status     ScanStatus        `json:"status" yaml:"status"`
	Modules    []string          `json:"modules" yaml:"modules"`
	Started    time.Time         `json:"started" yaml:"started"`
	Ended      *time.Time        `json:"ended,omitempty" yaml:"ended,omitempty"`
	Events     int               `json:"events" yaml:"events"`
}

// EventRecord is the stored form of a domain.Event
type EventRecord struct {
	ID             string                `json:"id" yaml:"id"`
	ScanID         string                `json:"scan_id" yaml:"scan_id"`
	Type           string                `json:"type" yaml:"type"`
	Data           string                `json:"data" yaml:"data"`
	Module         string                `json:"module" yaml:"module"`
	SourceID       string                `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	SourceData     string                `json:"source_data" yaml:"source_data"`
	Classification domain.Classification `json:"classification" yaml:"classification"`
	Generated      time.Time             `json:"generated" yaml:"generated"`
}

// RecordFromEvent flattens evt for storage
func RecordFromEvent(scanID string, evt *domain.Event) EventRecord {
	return EventRecord{
		ID:             evt.ID(),
		ScanID:         scanID,
		Type:           evt.Type(),
		Data:           evt.Data(),
		Module:         evt.Module(),
		SourceID:       evt.SourceID(),
		SourceData:     evt.SourceData(),
		Classification: evt.Classification(),
		Generated:      evt.Generated(),
	}
}

// EventFilter narrows ListEvents
type EventFilter struct {
	Types []string
	// Limit caps the result; 0 means no limit
	Limit int
}

// EventStore persists scans and the events they produce
type EventStore interface {
	// Scans
	CreateScan(ctx context.Context, scan *Scan) error
	FinishScan(ctx context.Context, id string, status ScanStatus, ended time.Time) error
	GetScan(ctx context.Context, id string) (*Scan, error)
	ListScans(ctx context.Context) ([]*Scan, error)
	DeleteScan(ctx context.Context, id string) error

	// Events
	SaveEvent(ctx context.Context, rec EventRecord) error
	ListEvents(ctx context.Context, scanID string, filter EventFilter) ([]EventRecord, error)

	// ProvenanceRows returns every event of a scan in the graph builder's
	// row shape, oldest first. The root row has parent and origin
	// domain.RootLabel.
	ProvenanceRows(ctx context.Context, scanID string) ([]provenance.Row, error)

	// Flattened scan options
	SaveScanConfig(ctx context.Context, scanID string, opts map[string]string) error
	GetScanConfig(ctx context.Context, scanID string) (map[string]string, error)

	// Close releases resources
	Close() error
}
