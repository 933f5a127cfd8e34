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

// DefaultCooldownThreshold is the number of run-global attempts a failed
// model sits out before it is probed again.
const DefaultCooldownThreshold = 100

// coolingModel is one member of the FIFO cooldown queue.
type coolingModel struct {
	model                *registry.Model
	failureCount         int
	attemptsSinceFailure int
}

// ErrorDriven is the reactive strategy: models are tried off an active
// stack until one succeeds; a failing model is parked in the cooldown queue
// and probed again after the threshold number of attempts has passed across
// the whole run.
//
// The active stack and cooldown queue partition the full registry: every
// model is in exactly one. Both are guarded by mu, which is held only for
// O(1) bookkeeping — never across a network call.
type ErrorDriven struct {
	reg       *registry.Registry
	stats     *stats.Collector
	threshold int

	mu     sync.Mutex
	active []*registry.Model // index 0 is the top
	queue  []*coolingModel   // index 0 failed longest ago
}

// NewErrorDriven builds the strategy with the active stack in registry
// priority order.
func NewErrorDriven(p Params) *ErrorDriven {
	threshold := p.CooldownThreshold
	if threshold <= 0 {
		threshold = DefaultCooldownThreshold
	}
	return &ErrorDriven{
		reg:       p.Registry,
		stats:     p.Stats,
		threshold: threshold,
		active:    p.Registry.All(),
	}
}

func (s *ErrorDriven) Name() string { return NameErrorDriven }

// Invoke tries backends for one record until success or exhaustion. Each
// invocation, from any worker, advances the shared attempt clock by one.
func (s *ErrorDriven) Invoke(ctx context.Context, recordID string, call CallFunc) (*Result, error) {
	s.tick()

	tried := make(map[string]bool)
	var lastErr error
	attempts := 0

	for {
		m, probing := s.next(tried)
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
			s.fail(m)
			s.record(recordID, m, false, backend.KindOf(err), duration)
			slog.Warn("model call failed, cascading",
				"record", recordID, "model", m.Key(), "probe", probing, "error", err)
			continue
		}

		s.promote(m)
		s.record(recordID, m, true, "", duration)
		return &Result{Payload: payload, Model: m, Attempts: attempts}, nil
	}
}

// tick advances the cooldown clock. This is one shared logical clock for
// the whole run, not per worker: FIFO-after-N-attempts semantics depend on
// every invocation counting.
func (s *ErrorDriven) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cm := range s.queue {
		cm.attemptsSinceFailure++
	}
}

// next selects the candidate for this attempt. A cooling model whose clock
// reached the threshold is probed ahead of the active stack; otherwise the
// topmost untried active model is used.
func (s *ErrorDriven) next(tried map[string]bool) (*registry.Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cm := range s.queue {
		if cm.attemptsSinceFailure >= s.threshold && !tried[cm.model.Key()] {
			return cm.model, true
		}
	}
	for _, m := range s.active {
		if !tried[m.Key()] {
			return m, false
		}
	}
	return nil, false
}

// fail parks a model in the cooldown queue. A model that is already cooling
// (a failed probe, or a concurrent failure from another worker) re-enters
// at the back of the queue with its clock reset; that extends the existing
// fallback episode, so no new episode is recorded.
func (s *ErrorDriven) fail(m *registry.Model) {
	s.mu.Lock()
	cm, idx := s.cooling(m)
	if cm != nil {
		cm.failureCount++
		cm.attemptsSinceFailure = 0
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
		s.queue = append(s.queue, cm)
		s.mu.Unlock()
		return
	}

	s.removeActive(m)
	s.queue = append(s.queue, &coolingModel{model: m, failureCount: 1})
	s.mu.Unlock()

	s.stats.RecordFallback(m.TierName)
}

// promote moves a successful model to the top of the active stack, removing
// it from the cooldown queue when this was a probe.
func (s *ErrorDriven) promote(m *registry.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cm, idx := s.cooling(m); cm != nil {
		s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	} else {
		s.removeActive(m)
	}
	s.active = append([]*registry.Model{m}, s.active...)
}

// cooling finds m in the queue. Callers hold mu.
func (s *ErrorDriven) cooling(m *registry.Model) (*coolingModel, int) {
	for i, cm := range s.queue {
		if cm.model.Key() == m.Key() {
			return cm, i
		}
	}
	return nil, -1
}

// removeActive deletes m from the active stack if present. Callers hold mu.
func (s *ErrorDriven) removeActive(m *registry.Model) {
	for i, am := range s.active {
		if am.Key() == m.Key() {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

func (s *ErrorDriven) record(recordID string, m *registry.Model, success bool, kind backend.ErrorKind, d time.Duration) {
	s.stats.RecordCall(stats.CallRecord{
		RecordID: recordID,
		Model:    m.Key(),
		Tier:     m.TierName,
		Success:  success,
		ErrKind:  string(kind),
		Duration: d,
	})
}

// Snapshot reports the active stack and cooldown queue.
func (s *ErrorDriven) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Strategy: NameErrorDriven}
	for _, m := range s.active {
		snap.Active = append(snap.Active, m.Key())
	}
	for _, cm := range s.queue {
		snap.Cooling = append(snap.Cooling, CoolingStatus{
			Model:                cm.model.Key(),
			FailureCount:         cm.failureCount,
			AttemptsSinceFailure: cm.attemptsSinceFailure,
			Threshold:            s.threshold,
		})
	}
	return snap
}
