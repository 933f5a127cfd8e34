// Package cascade implements the failover strategies that route one
// analysis request across the configured backend pool.
//
// Two strategies exist:
//   - error_driven: reactive; tries backends until one errors, then cascades
//     to the next. Failed backends sit in a FIFO cooldown queue keyed to a
//     run-global attempt clock.
//   - rate_limited: preemptive; checks per-tier quota before calling and
//     falls through tiers on exhaustion. Tiers recover after a fixed
//     wall-clock cooldown.
package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/registry"
	"github.com/openlexica/lexcascade/internal/stats"
)

// Canonical strategy names.
const (
	NameErrorDriven = "error_driven"
	NameRateLimited = "rate_limited"
)

// Legacy names still accepted on the CLI. Both predate the split into
// reactive and preemptive strategies and resolve to rate_limited.
var deprecatedAliases = map[string]string{
	"extended": NameRateLimited,
	"simple":   NameRateLimited,
}

// Resolve picks the canonical strategy name from the flag value, the
// LLM_CASCADE_STRATEGY environment default, and the worker count. With no
// explicit choice, multi-worker runs get rate_limited (lower cross-worker
// coordination cost) and single-worker runs get error_driven.
func Resolve(flagValue, envValue string, workers int) (string, error) {
	name := flagValue
	if name == "" {
		name = envValue
	}
	if name == "" {
		if workers > 1 {
			return NameRateLimited, nil
		}
		return NameErrorDriven, nil
	}

	if canonical, ok := deprecatedAliases[name]; ok {
		slog.Warn("deprecated cascade strategy name", "alias", name, "resolved", canonical)
		return canonical, nil
	}

	switch name {
	case NameErrorDriven, NameRateLimited:
		return name, nil
	}
	return "", fmt.Errorf("unknown cascade strategy: %q", name)
}

// CallFunc performs one opaque model invocation: prompt construction and
// output parsing live in the caller. Errors should be *backend.CallError so
// the strategy can branch on the failure kind.
type CallFunc func(ctx context.Context, m *registry.Model, b backend.Backend) (json.RawMessage, error)

// Result is a successful cascade invocation.
type Result struct {
	Payload  json.RawMessage
	Model    *registry.Model
	Attempts int
}

// Strategy decides which backend to try next for a request and how to react
// to success and failure.
type Strategy interface {
	Name() string
	// Invoke runs call against successive backends until one succeeds or
	// the pool is exhausted for this record.
	Invoke(ctx context.Context, recordID string, call CallFunc) (*Result, error)
	// Snapshot reports current cascade state for the end-of-run summary.
	Snapshot() Snapshot
}

// Params configures strategy construction.
type Params struct {
	Registry *registry.Registry
	Stats    *stats.Collector

	// CooldownThreshold is the error-driven attempt count before a failed
	// model is probed again. Default 100.
	CooldownThreshold int
	// Cooldown is the rate-limited wall-clock tier recovery delay.
	// Default 10 minutes.
	Cooldown time.Duration
	// Window is the fixed quota window length. Default 1 minute.
	Window time.Duration
	// Parallel enables round-robin across models within a tier.
	Parallel bool
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// New constructs the named strategy.
func New(name string, p Params) (Strategy, error) {
	switch name {
	case NameErrorDriven:
		return NewErrorDriven(p), nil
	case NameRateLimited:
		return NewRateLimited(p), nil
	}
	return nil, fmt.Errorf("unknown cascade strategy: %q", name)
}

// ExhaustedError reports that every selectable backend failed for one
// record. It is non-fatal: the dispatcher logs it and moves on.
type ExhaustedError struct {
	RecordID string
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("record %s: all backends exhausted after %d attempts: %v", e.RecordID, e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// IsExhausted reports whether err is a record-level exhaustion.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
