package cascade

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openlexica/lexcascade/internal/backend"
	"github.com/openlexica/lexcascade/internal/registry"
	"github.com/openlexica/lexcascade/internal/stats"
)

// Defaults for the rate-limited strategy.
const (
	DefaultCooldown = 10 * time.Minute
	DefaultWindow   = time.Minute
)

// tierState is the mutable quota state of one tier.
type tierState struct {
	tier          *registry.Tier
	quota         limiter
	fallbackUntil time.Time // zero when the tier is in rotation
	rr            int       // round-robin cursor for --parallel
}

// RateLimited is the preemptive strategy: tiers are walked in priority
// order and a tier is only called while its quota window has room. An
// exhausted tier (window hit, or a provider quota signal) falls back for a
// fixed wall-clock cooldown; recovery is purely time-driven, no probing.
type RateLimited struct {
	reg      *registry.Registry
	stats    *stats.Collector
	cooldown time.Duration
	parallel bool
	now      func() time.Time

	mu    sync.Mutex
	tiers []*tierState
}

// NewRateLimited builds the strategy with one quota window per tier.
func NewRateLimited(p Params) *RateLimited {
	cooldown := p.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	window := p.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	s := &RateLimited{
		reg:      p.Registry,
		stats:    p.Stats,
		cooldown: cooldown,
		parallel: p.Parallel,
		now:      now,
	}
	for _, t := range p.Registry.ByTier() {
		s.tiers = append(s.tiers, &tierState{
			tier:  t,
			quota: newFixedWindow(t.WindowLimit, window),
		})
	}
	return s
}

func (s *RateLimited) Name() string { return NameRateLimited }

// Invoke tries tiers in priority order for one record until success or
// exhaustion.
func (s *RateLimited) Invoke(ctx context.Context, recordID string, call CallFunc) (*Result, error) {
	tried := make(map[string]bool)
	var lastErr error
	attempts := 0

	for {
		m, ts := s.selectModel(tried)
		if m == nil {
			return nil, &ExhaustedError{RecordID: recordID, Attempts: attempts, LastErr: lastErr}
		}
		tried[m.Key()] = true
		attempts++

		start := time.Now()
		payload, err := call(ctx, m, s.reg.Backend(m))
		duration := time.Since(start)

		if err != nil {
			lastErr = err
			kind := backend.KindOf(err)
			if kind == backend.KindQuota {
				s.exhaust(ts)
			}
			s.record(recordID, m, false, kind, duration)
			slog.Warn("model call failed, falling through",
				"record", recordID, "model", m.Key(), "tier", m.TierName, "kind", kind, "error", err)
			continue
		}

		s.record(recordID, m, true, "", duration)
		return &Result{Payload: payload, Model: m, Attempts: attempts}, nil
	}
}

// selectModel walks tiers in priority order and picks an untried model from
// the first selectable tier, consuming one quota slot. A tier whose
// cooldown has elapsed re-enters rotation with a fresh window; a tier whose
// window fills up here is marked exhausted on the spot.
func (s *RateLimited) selectModel(tried map[string]bool) (*registry.Model, *tierState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, ts := range s.tiers {
		if !ts.fallbackUntil.IsZero() {
			if now.Before(ts.fallbackUntil) {
				continue
			}
			ts.fallbackUntil = time.Time{}
			ts.quota.reset(now)
		}

		var candidates []*registry.Model
		for _, m := range ts.tier.Models {
			if !tried[m.Key()] {
				candidates = append(candidates, m)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		if !ts.quota.allow(now) {
			s.markExhausted(ts, now)
			continue
		}

		if s.parallel && len(candidates) > 1 {
			m := candidates[ts.rr%len(candidates)]
			ts.rr++
			return m, ts
		}
		return candidates[0], ts
	}
	return nil, nil
}

// exhaust marks a tier as quota-exhausted after a provider signal.
func (s *RateLimited) exhaust(ts *tierState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markExhausted(ts, s.now())
}

// markExhausted starts the tier's cooldown if it is not already falling
// back. Callers hold mu.
func (s *RateLimited) markExhausted(ts *tierState, now time.Time) {
	if !ts.fallbackUntil.IsZero() {
		return
	}
	ts.fallbackUntil = now.Add(s.cooldown)
	s.stats.RecordFallback(ts.tier.Name)
	slog.Info("tier exhausted, falling back",
		"tier", ts.tier.Name, "until", ts.fallbackUntil.Format(time.RFC3339))
}

func (s *RateLimited) record(recordID string, m *registry.Model, success bool, kind backend.ErrorKind, d time.Duration) {
	s.stats.RecordCall(stats.CallRecord{
		RecordID: recordID,
		Model:    m.Key(),
		Tier:     m.TierName,
		Success:  success,
		ErrKind:  string(kind),
		Duration: d,
	})
}

// Snapshot reports per-tier quota state.
func (s *RateLimited) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	snap := Snapshot{Strategy: NameRateLimited}
	for _, ts := range s.tiers {
		calls, limit := ts.quota.used()
		status := TierStatus{
			Name:          ts.tier.Name,
			CallsInWindow: calls,
			WindowLimit:   limit,
		}
		if !ts.fallbackUntil.IsZero() && now.Before(ts.fallbackUntil) {
			status.FallbackRemaining = ts.fallbackUntil.Sub(now)
		}
		snap.Tiers = append(snap.Tiers, status)
	}
	return snap
}
