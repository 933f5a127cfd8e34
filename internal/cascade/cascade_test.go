package cascade

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// captureHandler records log output so tests can assert on emitted warnings.
type captureHandler struct {
	mu      sync.Mutex
	entries []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, r)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) countWarnings(substr string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.entries {
		if r.Level == slog.LevelWarn && strings.Contains(r.Message, substr) {
			n++
		}
	}
	return n
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		env     string
		workers int
		want    string
		wantErr bool
	}{
		{name: "explicit error_driven", flag: "error_driven", workers: 4, want: NameErrorDriven},
		{name: "explicit rate_limited", flag: "rate_limited", workers: 1, want: NameRateLimited},
		{name: "env fallback", env: "error_driven", workers: 8, want: NameErrorDriven},
		{name: "flag wins over env", flag: "rate_limited", env: "error_driven", want: NameRateLimited},
		{name: "default single worker", workers: 1, want: NameErrorDriven},
		{name: "default multi worker", workers: 4, want: NameRateLimited},
		{name: "deprecated extended", flag: "extended", want: NameRateLimited},
		{name: "deprecated simple", env: "simple", want: NameRateLimited},
		{name: "unknown", flag: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.flag, tt.env, tt.workers)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveAliasWarnsExactlyOnce(t *testing.T) {
	capture := &captureHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(capture))
	defer slog.SetDefault(prev)

	// Resolve runs once per process, so one call is one run.
	got, err := Resolve("simple", "", 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != NameRateLimited {
		t.Fatalf("expected %s, got %s", NameRateLimited, got)
	}
	if n := capture.countWarnings("deprecated"); n != 1 {
		t.Errorf("expected exactly 1 deprecation warning, got %d", n)
	}

	// Canonical names never warn.
	if _, err := Resolve(NameRateLimited, "", 1); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if n := capture.countWarnings("deprecated"); n != 1 {
		t.Errorf("canonical name must not warn; total warnings %d", n)
	}
}

func TestNewRejectsUnknownStrategy(t *testing.T) {
	if _, err := New("bogus", Params{}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestNewBuildsNamedStrategy(t *testing.T) {
	reg := threeModels(t)
	for _, name := range []string{NameErrorDriven, NameRateLimited} {
		s, err := New(name, Params{Registry: reg})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("expected strategy %q, got %q", name, s.Name())
		}
	}
}
