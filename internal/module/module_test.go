package module

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"footprint/internal/domain"
)

type stubModule struct {
	desc Descriptor
}

func (s *stubModule) Name() string                                 { return s.desc.Name }
func (s *stubModule) Descriptor() Descriptor                       { return s.desc }
func (s *stubModule) Configure(sc *ScanContext, opts Options) error { return nil }
func (s *stubModule) HandleEvent(ctx context.Context, evt *domain.Event, emit Notify) error {
	return nil
}

func TestDescriptorMatching(t *testing.T) {
	d := Descriptor{Name: "m", Watched: []string{"INTERNET_NAME"}, Produced: []string{Wildcard}}

	if !d.Watches("INTERNET_NAME") || d.Watches("IP_ADDRESS") {
		t.Error("Watches mismatch")
	}
	if !d.Produces("ANYTHING") {
		t.Error("wildcard producer should produce any type")
	}
}

func TestStateDedup(t *testing.T) {
	t.Run("data mode", func(t *testing.T) {
		s := NewState(Descriptor{Name: "m"})
		if !s.FirstSight("example.com") {
			t.Error("first sight should be true")
		}
		if s.FirstSight("example.com") {
			t.Error("repeat should be filtered")
		}
		if !s.FirstSight("other.com") {
			t.Error("different data should pass")
		}
		if got := s.Snapshot().Seen; got != 2 {
			t.Errorf("Seen = %d, want 2", got)
		}
	})

	t.Run("digest mode", func(t *testing.T) {
		s := NewState(Descriptor{Name: "m", Dedup: DedupDigest})
		big := fmt.Sprintf("%0100000d", 7)
		if !s.FirstSight(big) || s.FirstSight(big) {
			t.Error("digest filter should pass once then drop")
		}
	})
}

func TestStateErrored(t *testing.T) {
	s := NewState(Descriptor{Name: "m"})
	if s.Errored() {
		t.Fatal("new state must not be errored")
	}
	s.SetErrored("bad key")
	s.SetErrored("later reason")

	snap := s.Snapshot()
	if !snap.Errored || snap.Reason != "bad key" {
		t.Errorf("snapshot = %+v, want errored with first reason", snap)
	}
	if n := s.RecordFailure(); n != 1 {
		t.Errorf("RecordFailure = %d", n)
	}
}

func TestUpstreamError(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&UpstreamError{Module: "blocklist", Source: "https://lists.example/ip", Status: 503, Err: cause})

	if !errors.Is(err, ErrUpstreamFetch) {
		t.Error("expected errors.Is(err, ErrUpstreamFetch)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	var ue *UpstreamError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &ue) || ue.Status != 503 {
		t.Error("expected errors.As to find UpstreamError")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("retries upstream failures once", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, time.Millisecond, func(context.Context) error {
			calls++
			if calls == 1 {
				return &UpstreamError{Module: "m", Source: "x"}
			}
			return nil
		})
		if err != nil || calls != 2 {
			t.Errorf("Retry = %v after %d calls, want nil after 2", err, calls)
		}
	})

	t.Run("gives up after the second failure", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, time.Millisecond, func(context.Context) error {
			calls++
			return &UpstreamError{Module: "m", Source: "x"}
		})
		if !errors.Is(err, ErrUpstreamFetch) || calls != 2 {
			t.Errorf("Retry = %v after %d calls", err, calls)
		}
	})

	t.Run("does not retry authentication errors", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, time.Millisecond, func(context.Context) error {
			calls++
			return fmt.Errorf("api key: %w", ErrAuthentication)
		})
		if !errors.Is(err, ErrAuthentication) || calls != 1 {
			t.Errorf("Retry = %v after %d calls", err, calls)
		}
	})

	t.Run("stops waiting when cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		_ = Retry(cctx, time.Hour, func(context.Context) error {
			calls++
			return &UpstreamError{Module: "m", Source: "x"}
		})
		if calls != 1 {
			t.Errorf("expected 1 call after cancellation, got %d", calls)
		}
	})
}

func TestOptions(t *testing.T) {
	opts := Options{
		"ports":    "22, 80,443",
		"timeout":  "5s",
		"enabled":  "1",
		"count":    "12",
		"fromyaml": []any{"a", 1},
	}

	if got := opts.Strings("ports"); len(got) != 3 || got[1] != "80" {
		t.Errorf("Strings(ports) = %v", got)
	}
	if got := opts.Duration("timeout", 0); got != 5*time.Second {
		t.Errorf("Duration = %v", got)
	}
	if !opts.Bool("enabled", false) {
		t.Error("Bool(\"1\") should be true")
	}
	if got := opts.Int("count", 0); got != 12 {
		t.Errorf("Int = %d", got)
	}
	if got := opts.Int("missing", 3); got != 3 {
		t.Errorf("Int default = %d", got)
	}
	if got := opts.Strings("fromyaml"); len(got) != 2 || got[1] != "1" {
		t.Errorf("Strings(fromyaml) = %v", got)
	}

	merged := opts.Merge(Options{"count": 1})
	if merged.Int("count", 0) != 1 || opts.Int("count", 0) != 12 {
		t.Error("Merge must not modify the receiver")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	alpha := func() Module { return &stubModule{desc: Descriptor{Name: "alpha"}} }
	beta := func() Module { return &stubModule{desc: Descriptor{Name: "beta"}} }

	if err := r.Register(beta, Config{Enabled: false, Options: Options{"limit": 5}}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(alpha, Config{Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(alpha, Config{}); err == nil {
		t.Error("expected duplicate registration to fail")
	}
	if err := r.Register(func() Module { return &stubModule{} }, Config{}); err == nil {
		t.Error("expected nameless module to fail")
	}

	if names := r.Names(); len(names) != 2 || names[0] != "alpha" {
		t.Errorf("Names() not sorted: %v", names)
	}

	enabled, err := r.Select(nil)
	if err != nil || len(enabled) != 1 || enabled[0].Name() != "alpha" {
		t.Errorf("Select(nil) = %v, %v", enabled, err)
	}
	picked, err := r.Select([]string{"beta", "beta"})
	if err != nil || len(picked) != 1 {
		t.Errorf("Select(beta) = %v, %v", picked, err)
	}
	if _, err := r.Select([]string{"gamma"}); err == nil {
		t.Error("expected unknown module error")
	}

	again, _ := r.Select([]string{"alpha"})
	if again[0] == enabled[0] {
		t.Error("Select must return fresh instances per call")
	}
}

func TestRegistrySetConfig(t *testing.T) {
	r := NewRegistry(nil)
	beta := func() Module { return &stubModule{desc: Descriptor{Name: "beta"}} }
	if err := r.Register(beta, Config{Options: Options{"limit": 5, "mode": "fast"}}); err != nil {
		t.Fatal(err)
	}

	if err := r.SetConfig("beta", true, Options{"limit": 9}); err != nil {
		t.Fatal(err)
	}
	_, cfg, _ := r.Get("beta")
	if !cfg.Enabled || cfg.Options.Int("limit", 0) != 9 || cfg.Options.String("mode", "") != "fast" {
		t.Errorf("config after SetConfig = %+v", cfg)
	}
	if err := r.SetConfig("beta", false, Options{"mode": "slow"}); err != nil {
		t.Fatal(err)
	}
	_, cfg, _ = r.Get("beta")
	if cfg.Enabled || cfg.Options.Int("limit", 0) != 5 || cfg.Options.String("mode", "") != "slow" {
		t.Errorf("second SetConfig should start from defaults, got %+v", cfg)
	}
	if err := r.SetConfig("beta", true, nil); err != nil {
		t.Fatal(err)
	}

	if err := r.SetConfig("nope", true, nil); err == nil {
		t.Error("expected error for unknown module")
	}

	list := r.List()
	if len(list) != 1 || !list[0].Enabled || list[0].Name != "beta" {
		t.Errorf("List() = %+v", list)
	}
}

func TestDescriptorUseCases(t *testing.T) {
	d := Descriptor{Name: "m", UseCases: []string{UseCaseFootprint, UseCasePassive}}

	tests := []struct {
		useCase string
		want    bool
	}{
		{UseCaseAll, true},
		{"", true},
		{UseCaseFootprint, true},
		{"Passive", true},
		{UseCaseInvestigate, false},
	}
	for _, tt := range tests {
		t.Run(tt.useCase, func(t *testing.T) {
			if got := d.SupportsUseCase(tt.useCase); got != tt.want {
				t.Errorf("SupportsUseCase(%q) = %v, want %v", tt.useCase, got, tt.want)
			}
		})
	}
}
