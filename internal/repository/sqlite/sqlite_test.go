package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"footprint/internal/domain"
	"footprint/internal/provenance"
	"footprint/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual any) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func createScan(t *testing.T, repo *Repository, id string, started time.Time) *repository.Scan {
	t.Helper()
	scan := &repository.Scan{
		ID:         id,
		Name:       "scan " + id,
		Target:     "example.com",
		TargetType: domain.TargetInternetName,
		Status:     repository.ScanRunning,
		Modules:    []string{"dnsresolve", "portscan"},
		Started:    started,
	}
	assertNoError(t, repo.CreateScan(context.Background(), scan))
	return scan
}

// scanEvents builds root -> www.example.com -> 192.0.2.1 -> banner
func scanEvents(t *testing.T) []*domain.Event {
	t.Helper()
	target, err := domain.NewTarget("example.com", domain.TargetInternetName)
	assertNoError(t, err)

	root := domain.NewRootEvent(target)
	www, err := domain.NewEvent(domain.EventInternetName, "www.example.com", "crawler", root)
	assertNoError(t, err)
	ip, err := domain.NewEvent(domain.EventIPAddress, "192.0.2.1", "dnsresolve", www)
	assertNoError(t, err)
	banner, err := domain.NewEvent(domain.EventTCPPortOpenBanner, "SSH-2.0-OpenSSH_9.6", "portscan", ip)
	assertNoError(t, err)
	return []*domain.Event{root, www, ip, banner}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToString(t *testing.T) {
	tests := []struct {
		name     string
		input    sql.NullString
		expected string
	}{
		{"valid", sql.NullString{String: "x", Valid: true}, "x"},
		{"null", sql.NullString{}, ""},
		{"invalid with value", sql.NullString{String: "ignored"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertEqual(t, tt.expected, nullToString(tt.input))
		})
	}
}

func TestTimeHelpers(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 42, time.FixedZone("X", 3600))

	back, err := parseTime(formatTime(ts))
	assertNoError(t, err)
	if !back.Equal(ts) {
		t.Errorf("round trip = %v, want %v", back, ts)
	}

	early := formatTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	late := formatTime(time.Date(2026, 1, 1, 0, 0, 0, 500, time.UTC))
	if !(early < late) {
		t.Errorf("stored times must sort as text: %s !< %s", early, late)
	}

	p, err := nullToTimePtr(timePtrToNull(nil))
	assertNoError(t, err)
	if p != nil {
		t.Error("nil time should stay nil")
	}
}

func TestParseTimeForms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"fixed width", "2026-05-01T10:00:00.000000000Z", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"whole second", "2026-05-01T10:00:00Z", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"trimmed fraction", "2026-05-01T10:00:00.5Z", time.Date(2026, 5, 1, 10, 0, 0, 500000000, time.UTC)},
		{"offset", "2026-05-01T12:00:00+02:00", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTime(tt.in)
			assertNoError(t, err)
			if !got.Equal(tt.want) {
				t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if _, err := parseTime("yesterday"); err == nil {
		t.Error("expected an error for a malformed time")
	}
}

// ============================================================================
// Scan Tests
// ============================================================================

func TestCreateAndGetScan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	createScan(t, repo, "s1", started)

	got, err := repo.GetScan(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, "example.com", got.Target)
	assertEqual(t, domain.TargetInternetName, got.TargetType)
	assertEqual(t, repository.ScanRunning, got.Status)
	assertEqual(t, []string{"dnsresolve", "portscan"}, got.Modules)
	if !got.Started.Equal(started) || got.Ended != nil {
		t.Errorf("times = %v / %v", got.Started, got.Ended)
	}

	if _, err := repo.GetScan(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetScan(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStoredTimesKeepLayout(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	whole := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	createScan(t, repo, "s1", whole)
	assertNoError(t, repo.FinishScan(ctx, "s1", repository.ScanFinished, whole.Add(90*time.Second)))

	var stored, kind string
	row := repo.db.QueryRowContext(ctx, `SELECT started_at, typeof(started_at) FROM scans WHERE id = ?`, "s1")
	assertNoError(t, row.Scan(&stored, &kind))
	assertEqual(t, "2026-05-01T10:00:00.000000000Z", stored)
	assertEqual(t, "text", kind)

	got, err := repo.GetScan(ctx, "s1")
	assertNoError(t, err)
	if !got.Started.Equal(whole) {
		t.Errorf("Started = %v, want %v", got.Started, whole)
	}
	if got.Ended == nil || !got.Ended.Equal(whole.Add(90*time.Second)) {
		t.Errorf("Ended = %v", got.Ended)
	}

	scans, err := repo.ListScans(ctx)
	assertNoError(t, err)
	assertEqual(t, 1, len(scans))
}

func TestFinishScan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createScan(t, repo, "s1", time.Now())

	ended := time.Now().UTC()
	assertNoError(t, repo.FinishScan(ctx, "s1", repository.ScanAborted, ended))

	got, err := repo.GetScan(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, repository.ScanAborted, got.Status)
	if got.Ended == nil || !got.Ended.Equal(ended) {
		t.Errorf("Ended = %v, want %v", got.Ended, ended)
	}

	if err := repo.FinishScan(ctx, "nope", repository.ScanFinished, ended); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("FinishScan(nope) error = %v", err)
	}
}

func TestListScansNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	createScan(t, repo, "old", base)
	createScan(t, repo, "new", base.Add(time.Hour))

	scans, err := repo.ListScans(context.Background())
	assertNoError(t, err)
	if len(scans) != 2 || scans[0].ID != "new" {
		t.Fatalf("ListScans order wrong: %+v", scans)
	}
}

func TestDeleteScanCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createScan(t, repo, "s1", time.Now())

	for _, evt := range scanEvents(t) {
		assertNoError(t, repo.SaveEvent(ctx, repository.RecordFromEvent("s1", evt)))
	}
	assertNoError(t, repo.SaveScanConfig(ctx, "s1", map[string]string{"a": "1"}))
	assertNoError(t, repo.DeleteScan(ctx, "s1"))

	events, err := repo.ListEvents(ctx, "s1", repository.EventFilter{})
	assertNoError(t, err)
	assertEqual(t, 0, len(events))

	opts, err := repo.GetScanConfig(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, 0, len(opts))
}

// ============================================================================
// Event Tests
// ============================================================================

func TestSaveAndListEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createScan(t, repo, "s1", time.Now())

	evts := scanEvents(t)
	for _, evt := range evts {
		assertNoError(t, repo.SaveEvent(ctx, repository.RecordFromEvent("s1", evt)))
	}
	// duplicate saves are ignored
	assertNoError(t, repo.SaveEvent(ctx, repository.RecordFromEvent("s1", evts[1])))

	all, err := repo.ListEvents(ctx, "s1", repository.EventFilter{})
	assertNoError(t, err)
	assertEqual(t, 4, len(all))

	root := all[0]
	assertEqual(t, evts[0].ID(), root.ID)
	assertEqual(t, "", root.SourceID)
	assertEqual(t, domain.RootLabel, root.SourceData)
	assertEqual(t, domain.ClassInternal, root.Classification)

	ip := all[2]
	assertEqual(t, "192.0.2.1", ip.Data)
	assertEqual(t, evts[1].ID(), ip.SourceID)
	assertEqual(t, "www.example.com", ip.SourceData)
	if !ip.Generated.Equal(evts[2].Generated()) {
		t.Errorf("Generated = %v, want %v", ip.Generated, evts[2].Generated())
	}

	got, err := repo.ListEvents(ctx, "s1", repository.EventFilter{Types: []string{domain.EventIPAddress, domain.EventTCPPortOpenBanner}})
	assertNoError(t, err)
	assertEqual(t, 2, len(got))

	got, err = repo.ListEvents(ctx, "s1", repository.EventFilter{Limit: 1})
	assertNoError(t, err)
	assertEqual(t, 1, len(got))

	scan, err := repo.GetScan(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, 4, scan.Events)
}

func TestSaveEventRequiresScan(t *testing.T) {
	repo := newTestRepo(t)
	evt := scanEvents(t)[0]
	if err := repo.SaveEvent(context.Background(), repository.RecordFromEvent("ghost", evt)); err == nil {
		t.Error("expected foreign key violation for unknown scan")
	}
}

func TestProvenanceRows(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createScan(t, repo, "s1", time.Now())

	evts := scanEvents(t)
	for _, evt := range evts {
		assertNoError(t, repo.SaveEvent(ctx, repository.RecordFromEvent("s1", evt)))
	}

	rows, err := repo.ProvenanceRows(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, 4, len(rows))

	assertEqual(t, provenance.Row{
		Label:          "example.com",
		ParentLabel:    domain.RootLabel,
		OriginID:       domain.RootLabel,
		Classification: domain.ClassInternal,
		EventType:      string(domain.TargetInternetName),
	}, rows[0])
	assertEqual(t, evts[2].ID(), rows[3].OriginID)

	res := provenance.BuildEdges(rows, nil)
	want := []provenance.Edge{
		{Child: "192.0.2.1", Parent: "www.example.com"},
		{Child: "www.example.com", Parent: "example.com"},
	}
	assertEqual(t, want, res.Edges)
	assertEqual(t, 0, res.Skipped)
}

// ============================================================================
// Scan Config Tests
// ============================================================================

func TestScanConfig(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	createScan(t, repo, "s1", time.Now())

	assertNoError(t, repo.SaveScanConfig(ctx, "s1", map[string]string{
		"_maxfailures":       "1",
		"portscan:ports":     "22,80,443",
		"blocklist:cacheage": "24",
	}))
	assertNoError(t, repo.SaveScanConfig(ctx, "s1", map[string]string{"portscan:ports": "22"}))

	got, err := repo.GetScanConfig(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, map[string]string{"portscan:ports": "22"}, got)
}
