package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"footprint/internal/domain"
	"footprint/internal/repository"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull stores "" as NULL
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ============================================================================
// Time Helpers
// ============================================================================

// timeLayout is fixed width so stored times sort as text. The time columns
// are declared TEXT; the driver would otherwise hand DATETIME values back
// as time.Time.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads timeLayout and any other RFC 3339 form, including the
// trimmed fractions the driver produces when it formats a time itself
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// timePtrToNull converts an optional time to a nullable column value
func timePtrToNull(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullToTimePtr parses a nullable time column
func nullToTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// marshalToNull marshals a list to nullable JSON; empty lists are NULL
func marshalToNull(v []string) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalJSONField unmarshals nullable JSON into target
func unmarshalJSONField(ns sql.NullString, target any) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// ============================================================================
// Row Scanners
// ============================================================================
//
// scanArgs order MUST match the matching column list (scanColumns,
// eventColumns) exactly.

type scanRow struct {
	ID         string
	Name       string
	Target     string
	TargetType string
	Status     string
	Modules    sql.NullString
	Started    string
	Ended      sql.NullString
	Events     int
}

func (r *scanRow) scanArgs() []any {
	return []any{
		&r.ID,         // 1
		&r.Name,       // 2
		&r.Target,     // 3
		&r.TargetType, // 4
		&r.Status,     // 5
		&r.Modules,    // 6
		&r.Started,    // 7
		&r.Ended,      // 8
		&r.Events,     // 9
	}
}

func (r *scanRow) toDomain() (*repository.Scan, error) {
	scan := &repository.Scan{
		ID:         r.ID,
		Name:       r.Name,
		Target:     r.Target,
		TargetType: domain.TargetType(r.TargetType),
		Status:     repository.ScanStatus(r.Status),
		Modules:    []string{},
		Events:     r.Events,
	}
	if err := unmarshalJSONField(r.Modules, &scan.Modules); err != nil {
		return nil, fmt.Errorf("failed to unmarshal modules for scan %s: %w", r.ID, err)
	}

	var err error
	if scan.Started, err = parseTime(r.Started); err != nil {
		return nil, fmt.Errorf("bad started_at for scan %s: %w", r.ID, err)
	}
	if scan.Ended, err = nullToTimePtr(r.Ended); err != nil {
		return nil, fmt.Errorf("bad ended_at for scan %s: %w", r.ID, err)
	}
	return scan, nil
}

const eventColumns = `id, scan_id, type, data, module, source_id, source_data, classification, generated_at`

type eventRow struct {
	ID             string
	ScanID         string
	Type           string
	Data           string
	Module         string
	SourceID       sql.NullString
	SourceData     string
	Classification string
	Generated      string
}

func (r *eventRow) scanArgs() []any {
	return []any{
		&r.ID,             // 1
		&r.ScanID,         // 2
		&r.Type,           // 3
		&r.Data,           // 4
		&r.Module,         // 5
		&r.SourceID,       // 6
		&r.SourceData,     // 7
		&r.Classification, // 8
		&r.Generated,      // 9
	}
}

func (r *eventRow) toDomain() (repository.EventRecord, error) {
	generated, err := parseTime(r.Generated)
	if err != nil {
		return repository.EventRecord{}, fmt.Errorf("bad generated_at for event %s: %w", r.ID, err)
	}
	return repository.EventRecord{
		ID:             r.ID,
		ScanID:         r.ScanID,
		Type:           r.Type,
		Data:           r.Data,
		Module:         r.Module,
		SourceID:       nullToString(r.SourceID),
		SourceData:     r.SourceData,
		Classification: domain.Classification(r.Classification),
		Generated:      generated,
	}, nil
}
