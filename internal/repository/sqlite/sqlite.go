package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"footprint/internal/domain"
	"footprint/internal/provenance"
	"footprint/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Repository implements repository.EventStore using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.EventStore = (*Repository)(nil)

// New opens (creating if needed) the database at dbPath and applies
// migrations. ":memory:" gives a private in-memory database.
func New(dbPath string) (*Repository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection serializes writers and keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}

func dsn(path string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return ":memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas + "&_pragma=journal_mode(WAL)"
}

func (r *Repository) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, r.db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// CreateScan inserts a new scan record
func (r *Repository) CreateScan(ctx context.Context, scan *repository.Scan) error {
	modules, err := marshalToNull(scan.Modules)
	if err != nil {
		return fmt.Errorf("failed to marshal modules: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scans (id, name, target, target_type, status, modules, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, scan.ID, scan.Name, scan.Target, string(scan.TargetType), string(scan.Status), modules,
		formatTime(scan.Started), timePtrToNull(scan.Ended))
	if err != nil {
		return fmt.Errorf("failed to insert scan %s: %w", scan.ID, err)
	}
	return nil
}

// FinishScan records the final status of a scan
func (r *Repository) FinishScan(ctx context.Context, id string, status repository.ScanStatus, ended time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE scans SET status = ?, ended_at = ? WHERE id = ?
	`, string(status), formatTime(ended), id)
	if err != nil {
		return fmt.Errorf("failed to update scan %s: %w", id, err)
	}
	return requireRow(res, id)
}

const scanColumns = `s.id, s.name, s.target, s.target_type, s.status, s.modules, s.started_at, s.ended_at,
	(SELECT COUNT(*) FROM events e WHERE e.scan_id = s.id)`

// GetScan returns one scan with its event count
func (r *Repository) GetScan(ctx context.Context, id string) (*repository.Scan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans s WHERE s.id = ?`, id)

	var sr scanRow
	if err := row.Scan(sr.scanArgs()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scan %s: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get scan %s: %w", id, err)
	}
	return sr.toDomain()
}

// ListScans returns all scans, newest first
func (r *Repository) ListScans(ctx context.Context) ([]*repository.Scan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+scanColumns+` FROM scans s ORDER BY s.started_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	scans := make([]*repository.Scan, 0)
	for rows.Next() {
		var sr scanRow
		if err := rows.Scan(sr.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan scan row: %w", err)
		}
		scan, err := sr.toDomain()
		if err != nil {
			return nil, err
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scans: %w", err)
	}
	return scans, nil
}

// DeleteScan removes a scan and, by cascade, its events and config
func (r *Repository) DeleteScan(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scan %s: %w", id, err)
	}
	return requireRow(res, id)
}

// SaveEvent stores one event. Saving the same event id twice is a no-op.
func (r *Repository) SaveEvent(ctx context.Context, rec repository.EventRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, scan_id, type, data, module, source_id, source_data, classification, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID, rec.ScanID, rec.Type, rec.Data, rec.Module, stringToNull(rec.SourceID),
		rec.SourceData, string(rec.Classification), formatTime(rec.Generated))
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", rec.ID, err)
	}
	return nil
}

// ListEvents returns a scan's events in the order they were stored
func (r *Repository) ListEvents(ctx context.Context, scanID string, filter repository.EventFilter) ([]repository.EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE scan_id = ?`
	args := []any{scanID}

	if len(filter.Types) > 0 {
		query += ` AND type IN (?` + strings.Repeat(`, ?`, len(filter.Types)-1) + `)`
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	query += ` ORDER BY rowid`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]repository.EventRecord, 0)
	for rows.Next() {
		var er eventRow
		if err := rows.Scan(er.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec, err := er.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// ProvenanceRows returns the scan's events in the graph builder's row shape
func (r *Repository) ProvenanceRows(ctx context.Context, scanID string) ([]provenance.Row, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT data, source_data, source_id, classification, type
		FROM events WHERE scan_id = ? ORDER BY rowid
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query provenance rows: %w", err)
	}
	defer rows.Close()

	out := make([]provenance.Row, 0)
	for rows.Next() {
		var (
			label, parent, classification, eventType string
			origin                                   sql.NullString
		)
		if err := rows.Scan(&label, &parent, &origin, &classification, &eventType); err != nil {
			return nil, fmt.Errorf("failed to scan provenance row: %w", err)
		}
		originID := nullToString(origin)
		if originID == "" && parent == domain.RootLabel {
			originID = domain.RootLabel
		}
		out = append(out, provenance.Row{
			Label:          label,
			ParentLabel:    parent,
			OriginID:       originID,
			Classification: domain.Classification(classification),
			EventType:      eventType,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provenance rows: %w", err)
	}
	return out, nil
}

// SaveScanConfig replaces the stored options of a scan
func (r *Repository) SaveScanConfig(ctx context.Context, scanID string, opts map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_config WHERE scan_id = ?`, scanID); err != nil {
		return fmt.Errorf("failed to clear scan config: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scan_config (scan_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare config statement: %w", err)
	}
	defer stmt.Close()

	for k, v := range opts {
		if _, err := stmt.ExecContext(ctx, scanID, k, v); err != nil {
			return fmt.Errorf("failed to insert config %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetScanConfig returns the stored options of a scan
func (r *Repository) GetScanConfig(ctx context.Context, scanID string) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM scan_config WHERE scan_id = ?`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan config: %w", err)
	}
	defer rows.Close()

	opts := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		opts[k] = v
	}
	return opts, rows.Err()
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("scan %s: %w", id, repository.ErrNotFound)
	}
	return nil
}
